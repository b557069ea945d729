package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wgoossens/trackside/api"
	"github.com/wgoossens/trackside/discovery"
	"github.com/wgoossens/trackside/model"
	"github.com/wgoossens/trackside/service"
)

const defaultLang = "nl"

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed common.css
var commonCSS []byte

//go:embed placeholder.svg
var placeholderSVG []byte

const dayLayout = "2006-01-02"

type CatalogServiceInterface interface {
	Events() []model.Event
	Get(id string) *model.Event
	LastSync() *time.Time
}

type SubscriptionStoreInterface interface {
	Events() []model.Subscription
	Get(eventId string) *model.Subscription
	DisplayName(eventId string) string
}

type SubscribeFlowInterface interface {
	Open(eventId string, profile *model.Profile) (*service.Draft, error)
	Draft(id string) *service.Draft
	ToggleDiscipline(id, discipline string) error
	ToggleCategory(id, category string) error
	SetChestNumber(id, mode, value string) error
	SetFaceConsent(id string, allow bool) error
	CanContinue(draft *service.Draft) bool
	Submit(ctx context.Context, id string) (*service.Confirmation, error)
}

type ProfileServiceInterface interface {
	Profile(ctx context.Context) (*model.Profile, error)
}

type FeedServiceInterface interface {
	Calendar() string
}

type SessionInfo interface {
	LoggedIn() bool
}

type WebApp struct {
	catalog    CatalogServiceInterface
	store      SubscriptionStoreInterface
	flow       SubscribeFlowInterface
	profiles   ProfileServiceInterface
	feed       FeedServiceInterface
	session    SessionInfo
	templates  *template.Template
	translator *Translator
}

func NewWebApp(catalog CatalogServiceInterface, store SubscriptionStoreInterface, flow SubscribeFlowInterface, profiles ProfileServiceInterface, feed FeedServiceInterface, session SessionInfo) WebApp {
	translator := NewTranslator(defaultLang)

	funcMap := template.FuncMap{
		"T": func(key string, lang string) string {
			return translator.T(lang, key)
		},
		"formatDate": func(t any) string {
			if date, ok := t.(time.Time); ok {
				return date.Format(dayLayout)
			}
			return ""
		},
		"join": strings.Join,
	}

	templates := template.Must(template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html"))
	return WebApp{
		catalog:    catalog,
		store:      store,
		flow:       flow,
		profiles:   profiles,
		feed:       feed,
		session:    session,
		templates:  templates,
		translator: translator,
	}
}

// filterFromQuery rebuilds the ephemeral filter state from the request. The
// filter form never submits a visible count, so a plain form submit resets
// the window to the base page size; only the load-more link carries it over.
func filterFromQuery(q url.Values) discovery.Filter {
	f := discovery.Filter{
		ActiveField: q.Get("field"),
		Competition: q.Get("competition"),
		Location:    q.Get("location"),
		Type:        q.Get("type"),
	}
	if f.ActiveField != discovery.FIELD_LOCATION {
		f.ActiveField = discovery.FIELD_COMPETITION
	}
	if from, err := time.ParseInLocation(dayLayout, q.Get("from"), time.Local); err == nil {
		start := discovery.StartOfDay(from)
		f.Range.Start = &start
	}
	if to, err := time.ParseInLocation(dayLayout, q.Get("to"), time.Local); err == nil {
		end := discovery.EndOfDay(to)
		f.Range.End = &end
	}
	return f
}

type EventView struct {
	model.Event
	Subscribed bool
}

type DiscoveryPageData struct {
	Lang         string
	Filter       discovery.Filter
	From         string
	To           string
	Events       []EventView
	TotalMatched int
	VisibleCount int
	MoreURL      string
	LoggedIn     bool
	LastSync     string
}

func (app *WebApp) DiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := filterFromQuery(q)

	window := discovery.NewWindow(filter.TextActive())
	if visible, err := strconv.Atoi(q.Get("visible")); err == nil {
		window.Restore(visible)
	}

	ranked := discovery.FilterAndRank(app.catalog.Events(), filter)
	if q.Get("more") == "1" {
		// The load-more link is the web stand-in for scrolling to the end.
		window.ReportScroll(0, len(ranked))
	}
	visible := window.Slice(ranked)

	views := make([]EventView, 0, len(visible))
	for _, e := range visible {
		views = append(views, EventView{Event: e, Subscribed: app.store.Get(e.Id) != nil})
	}

	moreURL := ""
	if len(visible) < len(ranked) {
		more := url.Values{}
		for _, key := range []string{"field", "competition", "location", "type", "from", "to"} {
			if q.Get(key) != "" {
				more.Set(key, q.Get(key))
			}
		}
		more.Set("visible", strconv.Itoa(window.VisibleCount()))
		more.Set("more", "1")
		moreURL = "/?" + more.Encode()
	}

	data := DiscoveryPageData{
		Lang:         GetLanguageFromContext(r.Context()),
		Filter:       filter,
		From:         q.Get("from"),
		To:           q.Get("to"),
		Events:       views,
		TotalMatched: len(ranked),
		VisibleCount: window.VisibleCount(),
		MoreURL:      moreURL,
		LoggedIn:     app.session.LoggedIn(),
		LastSync:     app.lastSync(),
	}

	if err := app.templates.ExecuteTemplate(w, "discover.html", data); err != nil {
		log.Printf("Template execution error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RangeHandler drives the range picker dialog: presets and per-field edits
// go through the state machine, then the committed range is carried back to
// the discovery page as query parameters.
func (app *WebApp) RangeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	committed := discovery.DateRange{}
	if from, err := time.ParseInLocation(dayLayout, r.FormValue("committed_from"), time.Local); err == nil {
		start := discovery.StartOfDay(from)
		committed.Start = &start
	}
	if to, err := time.ParseInLocation(dayLayout, r.FormValue("committed_to"), time.Local); err == nil {
		end := discovery.EndOfDay(to)
		committed.End = &end
	}

	picker := discovery.NewRangePicker(committed)
	picker.Open(time.Now())

	switch r.FormValue("preset") {
	case "week":
		picker.PresetWeek(time.Now())
	case "month":
		picker.PresetMonth(time.Now())
	case "year":
		picker.PresetYear(time.Now())
	default:
		if start, err := time.ParseInLocation(dayLayout, r.FormValue("start"), time.Local); err == nil {
			picker.SetStart(start)
		}
		if end, err := time.ParseInLocation(dayLayout, r.FormValue("end"), time.Local); err == nil {
			picker.SetEnd(end)
		}
	}

	if r.FormValue("action") == "cancel" {
		picker.Cancel()
	} else {
		picker.Apply()
	}

	redirect := url.Values{}
	for _, key := range []string{"field", "competition", "location", "type"} {
		if r.FormValue(key) != "" {
			redirect.Set(key, r.FormValue(key))
		}
	}
	result := picker.Committed()
	if result.Start != nil {
		redirect.Set("from", result.Start.Format(dayLayout))
	}
	if result.End != nil {
		redirect.Set("to", result.End.Format(dayLayout))
	}

	http.Redirect(w, r, "/?"+redirect.Encode(), http.StatusSeeOther)
}

type EventPageData struct {
	Lang        string
	Event       *model.Event
	Draft       *service.Draft
	CanContinue bool
	Categories  []string
	Error       string
	LoggedIn    bool
}

func (app *WebApp) EventHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	event := app.catalog.Get(id)
	if event == nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	profile, err := app.profiles.Profile(r.Context())
	if err != nil {
		log.Printf("Profile lookup failed: %v", err)
	}

	draft, err := app.flow.Open(id, profile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	app.renderEventPage(w, r, event, draft, "")
}

func (app *WebApp) renderEventPage(w http.ResponseWriter, r *http.Request, event *model.Event, draft *service.Draft, errMsg string) {
	data := EventPageData{
		Lang:        GetLanguageFromContext(r.Context()),
		Event:       event,
		Draft:       draft,
		CanContinue: app.flow.CanContinue(draft),
		Categories:  model.AGE_CATEGORIES,
		Error:       errMsg,
		LoggedIn:    app.session.LoggedIn(),
	}
	if err := app.templates.ExecuteTemplate(w, "event.html", data); err != nil {
		log.Printf("Template execution error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type ConfirmationPageData struct {
	Lang         string
	Confirmation *service.Confirmation
}

// SubscribeHandler maps the posted form onto the draft via the flow's
// toggles, then submits when the form asked for it. A failed submit renders
// the form again with the draft intact.
func (app *WebApp) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	draftId := r.PathValue("draft")
	draft := app.flow.Draft(draftId)
	if draft == nil {
		// Draft expired (e.g. submitted in another tab); start over.
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	event := app.catalog.Get(draft.EventId)
	if event == nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	applyToggles(draft.Disciplines, r.Form["disciplines"], func(name string) {
		app.flow.ToggleDiscipline(draftId, name)
	})
	applyCategoryToggles(app.flow, draftId, draft, r.Form["categories"])
	app.flow.SetChestNumber(draftId, r.FormValue("chest_mode"), strings.TrimSpace(r.FormValue("chest_number")))
	app.flow.SetFaceConsent(draftId, r.FormValue("face_consent") == "on")

	// Drafts are handed out as copies; re-fetch so the render reflects the
	// toggles just applied.
	draft = app.flow.Draft(draftId)
	if draft == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.FormValue("action") != "confirm" {
		app.renderEventPage(w, r, event, draft, "")
		return
	}

	confirmation, err := app.flow.Submit(r.Context(), draftId)
	if err != nil {
		app.renderEventPage(w, r, event, draft, app.errorText(r, err))
		return
	}
	if confirmation == nil {
		// A submit is already in flight for this draft.
		app.renderEventPage(w, r, event, draft, "")
		return
	}

	data := ConfirmationPageData{
		Lang:         GetLanguageFromContext(r.Context()),
		Confirmation: confirmation,
	}
	if err := app.templates.ExecuteTemplate(w, "confirmation.html", data); err != nil {
		log.Printf("Template execution error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (app *WebApp) FeedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Write([]byte(app.feed.Calendar()))
}

func (app *WebApp) EventsJSONHandler(w http.ResponseWriter, r *http.Request) {
	events := app.catalog.Events()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(events); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (app *WebApp) CommonCSSHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(commonCSS)
}

func (app *WebApp) PlaceholderHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(placeholderSVG)
}

// Routes builds the mux. Basic auth, when enabled, is layered on by the
// caller so the calendar feed can stay reachable for calendar apps.
func (app *WebApp) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", app.DiscoveryHandler)
	mux.HandleFunc("POST /range", app.RangeHandler)
	mux.HandleFunc("GET /event/{id}", app.EventHandler)
	mux.HandleFunc("POST /subscribe/{draft}", app.SubscribeHandler)
	mux.HandleFunc("GET /calendar.ics", app.FeedHandler)
	mux.HandleFunc("GET /api/events", app.EventsJSONHandler)
	mux.HandleFunc("GET /static/common.css", app.CommonCSSHandler)
	mux.HandleFunc("GET /static/placeholder.svg", app.PlaceholderHandler)
	return mux
}

func (app *WebApp) lastSync() string {
	t := app.catalog.LastSync()
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

// errorText maps the gateway error contract onto user-facing messages.
func (app *WebApp) errorText(r *http.Request, err error) string {
	lang := GetLanguageFromContext(r.Context())
	switch {
	case api.IsInsufficientCredits(err):
		return app.translator.T(lang, "error.credits")
	case api.IsMissingConsent(err):
		return app.translator.T(lang, "error.consent")
	case api.IsIncompleteEnrollment(err):
		return app.translator.T(lang, "error.enrollment")
	default:
		return fmt.Sprintf("%s: %s", app.translator.T(lang, "error.subscribe"), err.Error())
	}
}

// applyToggles drives set membership toward the submitted form values using
// only toggle operations, so the flow controller stays the single mutator.
func applyToggles(current map[string]bool, submitted []string, toggle func(string)) {
	want := map[string]bool{}
	for _, name := range submitted {
		want[name] = true
	}
	var flips []string
	for name := range current {
		if !want[name] {
			flips = append(flips, name)
		}
	}
	for name := range want {
		if !current[name] {
			flips = append(flips, name)
		}
	}
	for _, name := range flips {
		toggle(name)
	}
}

func applyCategoryToggles(flow SubscribeFlowInterface, draftId string, draft *service.Draft, submitted []string) {
	concrete := []string{}
	for _, name := range submitted {
		if name != service.CATEGORY_ALL {
			concrete = append(concrete, name)
		}
	}
	current := map[string]bool{}
	for name := range draft.Categories {
		if name != service.CATEGORY_ALL {
			current[name] = true
		}
	}
	applyToggles(current, concrete, func(name string) {
		flow.ToggleCategory(draftId, name)
	})
}

// LoggingMiddleware logs every request
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
