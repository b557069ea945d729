package service

import (
	"context"
	"errors"
	"log"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wgoossens/trackside/model"
)

const CHEST_MODE_DEFAULT = "default"
const CHEST_MODE_MANUAL = "manual"

// CATEGORY_ALL is the pseudo-category covering every age category. It is
// mutually exclusive with concrete selections.
const CATEGORY_ALL = "All"

var ErrNoDraft = errors.New("no subscribe draft for this session")
var ErrDraftIncomplete = errors.New("draft does not satisfy the subscribe preconditions")

// Draft is one subscribe-modal session. Id ties a stateless web form back
// to its draft. The flow only ever hands out copies; the stored draft is
// mutated exclusively under the flow's lock.
type Draft struct {
	Id                 string
	EventId            string
	Disciplines        map[string]bool
	Categories         map[string]bool
	ChestNumberMode    string
	ChestNumberValue   string
	DefaultChestNumber string
	AllowFaceConsent   bool
	createdAt          time.Time
}

func (d *Draft) clone() *Draft {
	c := *d
	c.Disciplines = make(map[string]bool, len(d.Disciplines))
	for k, v := range d.Disciplines {
		c.Disciplines[k] = v
	}
	c.Categories = make(map[string]bool, len(d.Categories))
	for k, v := range d.Categories {
		c.Categories[k] = v
	}
	return &c
}

// SelectedDisciplines returns the set as a sorted slice for rendering and
// submission.
func (d *Draft) SelectedDisciplines() []string {
	return sortedKeys(d.Disciplines)
}

func (d *Draft) SelectedCategories() []string {
	return sortedKeys(d.Categories)
}

// ChestNumber is the usable chest number under the current mode, empty when
// there is none.
func (d *Draft) ChestNumber() string {
	if d.ChestNumberMode == CHEST_MODE_MANUAL {
		return d.ChestNumberValue
	}
	return d.DefaultChestNumber
}

// Confirmation is the typed payload carried to the confirmation view.
type Confirmation struct {
	EventId     string
	EventTitle  string
	Disciplines []string
	ChestNumber string
	Categories  []string
}

type Subscriber interface {
	SubscribeToEvent(ctx context.Context, eventId string, disciplines []string, chestNumber string, categories []string) error
	GrantFaceRecognitionConsent(ctx context.Context) error
}

type Refresher interface {
	Refresh(ctx context.Context) error
}

type EventLookup interface {
	Get(id string) *model.Event
}

// SubscribeFlow orchestrates the discipline picking, chest number, consent
// and subscribe sequence. One draft per draft id; a submit in flight makes
// re-entrant submits no-ops; a failed subscribe keeps the draft intact.
type SubscribeFlow struct {
	mu         sync.Mutex
	gateway    Subscriber
	store      Refresher
	catalog    EventLookup
	drafts     map[string]*Draft
	submitting map[string]bool
}

func NewSubscribeFlow(gateway Subscriber, store Refresher, catalog EventLookup) *SubscribeFlow {
	return &SubscribeFlow{
		gateway:    gateway,
		store:      store,
		catalog:    catalog,
		drafts:     map[string]*Draft{},
		submitting: map[string]bool{},
	}
}

// draftTTL bounds how long an abandoned draft survives. Expired drafts are
// swept whenever a new one is opened, so crawlers hitting event pages do not
// grow the map without bound.
var draftTTL = 30 * time.Minute

// Open starts a fresh draft for the target event with the modal defaults
// and the resolved default chest number. The returned draft is a copy.
func (f *SubscribeFlow) Open(eventId string, profile *model.Profile) (*Draft, error) {
	event := f.catalog.Get(eventId)
	if event == nil {
		return nil, errors.New("unknown event " + eventId)
	}
	now := time.Now()
	draft := &Draft{
		Id:                 uuid.NewString(),
		EventId:            eventId,
		Disciplines:        map[string]bool{},
		Categories:         map[string]bool{CATEGORY_ALL: true},
		ChestNumberMode:    CHEST_MODE_DEFAULT,
		DefaultChestNumber: DefaultChestNumber(profile, event, now),
		createdAt:          now,
	}
	f.mu.Lock()
	for id, d := range f.drafts {
		if now.Sub(d.createdAt) > draftTTL && !f.submitting[id] {
			delete(f.drafts, id)
		}
	}
	f.drafts[draft.Id] = draft
	f.mu.Unlock()
	return draft.clone(), nil
}

// Draft returns a copy of the draft, or nil when it does not exist. Callers
// mutate only through the flow's methods.
func (f *SubscribeFlow) Draft(id string) *Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft := f.drafts[id]
	if draft == nil {
		return nil
	}
	return draft.clone()
}

func (f *SubscribeFlow) ToggleDiscipline(id, discipline string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft := f.drafts[id]
	if draft == nil {
		return ErrNoDraft
	}
	if draft.Disciplines[discipline] {
		delete(draft.Disciplines, discipline)
	} else {
		draft.Disciplines[discipline] = true
	}
	return nil
}

// ToggleCategory keeps the "All" exclusivity: picking a concrete category
// removes All, removing the last concrete category restores it.
func (f *SubscribeFlow) ToggleCategory(id, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft := f.drafts[id]
	if draft == nil {
		return ErrNoDraft
	}
	if category == CATEGORY_ALL {
		// Selecting All directly clears every concrete choice.
		draft.Categories = map[string]bool{CATEGORY_ALL: true}
		return nil
	}
	if draft.Categories[category] {
		delete(draft.Categories, category)
		if len(draft.Categories) == 0 {
			draft.Categories[CATEGORY_ALL] = true
		}
	} else {
		delete(draft.Categories, CATEGORY_ALL)
		draft.Categories[category] = true
	}
	return nil
}

func (f *SubscribeFlow) SetChestNumber(id, mode, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft := f.drafts[id]
	if draft == nil {
		return ErrNoDraft
	}
	if mode != CHEST_MODE_MANUAL {
		mode = CHEST_MODE_DEFAULT
	}
	draft.ChestNumberMode = mode
	draft.ChestNumberValue = value
	return nil
}

func (f *SubscribeFlow) SetFaceConsent(id string, allow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft := f.drafts[id]
	if draft == nil {
		return ErrNoDraft
	}
	draft.AllowFaceConsent = allow
	return nil
}

// CanContinue is the submit precondition: at least one discipline, and for
// track competitions a usable chest number. The draft argument is a copy as
// handed out by Open or Draft.
func (f *SubscribeFlow) CanContinue(draft *Draft) bool {
	if draft == nil || len(draft.Disciplines) == 0 {
		return false
	}
	event := f.catalog.Get(draft.EventId)
	if event != nil && event.Type == model.COMPETITION_TYPE_TRACK && draft.ChestNumber() == "" {
		return false
	}
	return true
}

// Submit performs the subscribe call, then the consent grant strictly after
// a successful subscribe and only best-effort, then refreshes the store.
// While a submit is in flight further calls for the same draft return
// (nil, nil) and are ignored. On subscribe failure the draft survives.
func (f *SubscribeFlow) Submit(ctx context.Context, id string) (*Confirmation, error) {
	f.mu.Lock()
	stored := f.drafts[id]
	if stored == nil {
		f.mu.Unlock()
		return nil, ErrNoDraft
	}
	if f.submitting[id] {
		f.mu.Unlock()
		return nil, nil
	}
	f.submitting[id] = true
	// Snapshot under the lock; concurrent toggles for the same draft must
	// not race the reads below.
	draft := stored.clone()
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.submitting, id)
		f.mu.Unlock()
	}()

	if !f.CanContinue(draft) {
		return nil, ErrDraftIncomplete
	}

	disciplines := draft.SelectedDisciplines()
	categories := draft.SelectedCategories()
	chestNumber := draft.ChestNumber()

	if err := f.gateway.SubscribeToEvent(ctx, draft.EventId, disciplines, chestNumber, categories); err != nil {
		return nil, err
	}

	if draft.AllowFaceConsent {
		// Consent failure never rolls back the subscription.
		if err := f.gateway.GrantFaceRecognitionConsent(ctx); err != nil {
			log.Printf("Face consent grant failed after subscribe: %s", err.Error())
		}
	}

	if err := f.store.Refresh(ctx); err != nil {
		log.Printf("Subscription refresh after subscribe failed: %s", err.Error())
	}

	title := ""
	if event := f.catalog.Get(draft.EventId); event != nil {
		title = event.Title
	}

	f.mu.Lock()
	delete(f.drafts, id)
	f.mu.Unlock()

	return &Confirmation{
		EventId:     draft.EventId,
		EventTitle:  title,
		Disciplines: disciplines,
		ChestNumber: chestNumber,
		Categories:  categories,
	}, nil
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// DefaultChestNumber resolves a chest number from the profile's per-year
// map. The year comes from the event's parsed date, else from the
// first plausible 4-digit year in its raw date, title or location, else the
// current calendar year. No match resolves to the empty string.
func DefaultChestNumber(profile *model.Profile, event *model.Event, now time.Time) string {
	if profile == nil || len(profile.ChestNumbers) == 0 {
		return ""
	}
	year := ""
	if event != nil {
		if event.DateValid {
			year = strconv.Itoa(event.Date.Year())
		} else if m := yearPattern.FindString(event.RawDate + " " + event.Title + " " + event.Location); m != "" {
			year = m
		}
	}
	if year != "" {
		if n := profile.ChestNumbers[year]; n != "" {
			return n
		}
	}
	return profile.ChestNumbers[strconv.Itoa(now.Year())]
}

func sortedKeys(set map[string]bool) []string {
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
