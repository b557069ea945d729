package service

import (
	"fmt"
	"log"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/wgoossens/trackside/model"
)

type SubscriptionLister interface {
	Events() []model.Subscription
}

// FeedService serializes the subscribed competitions into an ICS calendar,
// one all-day event per competition.
type FeedService struct {
	store SubscriptionLister
}

func NewFeedService(store SubscriptionLister) *FeedService {
	return &FeedService{store: store}
}

func (s *FeedService) Calendar() string {
	icsCal := ics.NewCalendar()
	icsCal.SetProductId("trackside v0.1")
	icsCal.SetMethod(ics.MethodPublish)
	icsCal.SetName("My competitions")

	for _, sub := range s.store.Events() {
		if sub.Event == nil {
			continue
		}
		if !sub.Event.DateValid {
			// No usable date, nothing to place on a calendar.
			log.Printf("Skipping feed entry for %s: unparseable date %q", sub.EventId, sub.Event.RawDate)
			continue
		}
		e := icsCal.AddEvent(fmt.Sprintf("competition-%s@trackside", sub.EventId))
		e.SetDtStampTime(sub.SubscribedAt)
		e.SetSummary(sub.Event.Title)
		e.SetDescription(feedDescription(sub))

		e.SetAllDayStartAt(sub.Event.Date)
		e.SetAllDayEndAt(sub.Event.Date.Add(time.Hour * 24))
		e.SetTimeTransparency(ics.TransparencyTransparent)

		e.AddProperty(ics.ComponentPropertyLocation, sub.Event.Location)
		e.SetProperty("X-MICROSOFT-CDO-ALLDAYEVENT", "TRUE")
	}

	return icsCal.Serialize()
}

func feedDescription(sub model.Subscription) string {
	lines := []string{}
	if len(sub.Disciplines) > 0 {
		lines = append(lines, "Disciplines: "+strings.Join(sub.Disciplines, ", "))
	}
	if sub.ChestNumber != "" {
		lines = append(lines, "Chest number: "+sub.ChestNumber)
	}
	if len(sub.Categories) > 0 {
		lines = append(lines, "Categories: "+strings.Join(sub.Categories, ", "))
	}
	return strings.Join(lines, "\n")
}
