package discovery

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wgoossens/trackside/model"
)

const FIELD_COMPETITION = "Competition"
const FIELD_LOCATION = "Location"

const TYPE_FILTER_ALL = "all"

// The gateway has no authoritative competition type, so we classify from
// keywords in the raw type/name/location. Best effort only; isolated here so
// a server-provided field can replace it without touching the ranking.
var roadKeywords = regexp.MustCompile(`(?i)road|trail|marathon|veldloop|veldlopen|cross|5k|10k|half|ultra|city run`)

func InferType(kind, name, location string) string {
	if roadKeywords.MatchString(kind + " " + name + " " + location) {
		return model.COMPETITION_TYPE_ROAD
	}
	return model.COMPETITION_TYPE_TRACK
}

var nativeDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseEventDate parses the gateway's free-form date strings. ISO-ish layouts
// are tried first, then a day/month/year slash split interpreted at local
// noon so the calendar day survives timezone conversion. The bool reports
// whether the date is usable for range filtering; the raw string is still
// shown verbatim either way.
func ParseEventDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range nativeDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return time.Time{}, false
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.Local), true
}

// DateRange is an inclusive committed range. Nil bounds are open sides.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

func (r DateRange) Active() bool {
	return r.Start != nil || r.End != nil
}

func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// Filter is the discovery screen's ephemeral state. ActiveField names the
// text field the user is currently editing; it decides the primary ranking
// field, not which predicates apply.
type Filter struct {
	ActiveField string
	Competition string
	Location    string
	Type        string
	Range       DateRange
}

// TextActive reports whether any text query is set. It picks the larger
// page size for the pagination window.
func (f Filter) TextActive() bool {
	return f.Competition != "" || f.Location != ""
}

func (f Filter) Match(e model.Event) bool {
	if f.Type != "" && f.Type != TYPE_FILTER_ALL && e.Type != f.Type {
		return false
	}
	if f.Competition != "" && !containsFold(e.Title, f.Competition) {
		return false
	}
	if f.Location != "" && !containsFold(e.Location, f.Location) {
		return false
	}
	if f.Range.Active() {
		// Events without a usable date never fall inside an active range.
		if !e.DateValid || !f.Range.Contains(e.Date) {
			return false
		}
	}
	return true
}

// matchRank scores a field against its query: 0 for a prefix match, 1 for a
// substring elsewhere, 2 for a miss. An empty query ranks 1 so it neither
// beats nor trails real matches.
func matchRank(value, query string) int {
	if query == "" {
		return 1
	}
	v := strings.ToLower(value)
	q := strings.ToLower(query)
	if strings.HasPrefix(v, q) {
		return 0
	}
	if strings.Contains(v, q) {
		return 1
	}
	return 2
}

func (f Filter) ranks(e model.Event) (int, int) {
	if f.ActiveField == FIELD_LOCATION {
		return matchRank(e.Location, f.Location), matchRank(e.Title, f.Competition)
	}
	return matchRank(e.Title, f.Competition), matchRank(e.Location, f.Location)
}

func rankDate(e model.Event) time.Time {
	if !e.DateValid {
		// Unparseable dates sort as the epoch, i.e. to the bottom of the
		// date-descending tie break.
		return time.Unix(0, 0)
	}
	return e.Date
}

// Compare orders two events for display: primary-field match rank, then the
// other field's rank, then date descending. Suitable for a stable sort.
func (f Filter) Compare(a, b model.Event) int {
	pa, sa := f.ranks(a)
	pb, sb := f.ranks(b)
	if pa != pb {
		return pa - pb
	}
	if sa != sb {
		return sa - sb
	}
	ad, bd := rankDate(a), rankDate(b)
	if ad.After(bd) {
		return -1
	}
	if bd.After(ad) {
		return 1
	}
	return 0
}

// FilterAndRank applies the predicate and the three-level comparator. Pure;
// equal events keep their input order.
func FilterAndRank(events []model.Event, f Filter) []model.Event {
	result := make([]model.Event, 0, len(events))
	for _, e := range events {
		if f.Match(e) {
			result = append(result, e)
		}
	}
	slices.SortStableFunc(result, f.Compare)
	return result
}

// ComputeVisibleEvents is the discovery screen's one entry point: filter,
// rank, then cut to the window's visible prefix.
func ComputeVisibleEvents(events []model.Event, f Filter, w *Window) []model.Event {
	return w.Slice(FilterAndRank(events, f))
}

func containsFold(value, query string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(query))
}
