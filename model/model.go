package model

import "time"

const COMPETITION_TYPE_TRACK = "track"
const COMPETITION_TYPE_ROAD = "road"

const PLACEHOLDER_THUMBNAIL = "/static/placeholder.svg"

// Event is a competition as cached from the gateway. Id is the only stable
// key; everything else may change between syncs.
type Event struct {
	Id             string
	Title          string
	Location       string
	RawDate        string
	Date           time.Time
	DateValid      bool
	Type           string
	OrganizingClub string
	Thumbnail      string
	Disciplines    []string
	UpdatedAt      time.Time
}

// AGE_CATEGORIES are the selectable age categories on a subscription, with
// the "All" pseudo-category first.
var AGE_CATEGORIES = []string{"All", "Cadet", "Scholier", "Junior", "Senior", "Master"}

// ThumbnailOrPlaceholder falls back to the bundled placeholder when the
// gateway delivered no image.
func (e Event) ThumbnailOrPlaceholder() string {
	if e.Thumbnail == "" {
		return PLACEHOLDER_THUMBNAIL
	}
	return e.Thumbnail
}

type Subscription struct {
	EventId      string
	Disciplines  []string
	ChestNumber  string
	Categories   []string
	SubscribedAt time.Time
	Event        *Event
}

// Profile mirrors the gateway's user profile. ChestNumbers maps a calendar
// year ("2025") to the chest number assigned for that year.
type Profile struct {
	Id           string
	Name         string
	ChestNumbers map[string]string
	FaceConsent  bool
}
