package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wgoossens/trackside/model"
	"github.com/wgoossens/trackside/service"
)

type fakeLister struct {
	subs []model.Subscription
}

func (l *fakeLister) Events() []model.Subscription {
	return l.subs
}

func TestCalendarFeed(t *testing.T) {
	lister := &fakeLister{subs: []model.Subscription{
		{
			EventId:      "e1",
			Disciplines:  []string{"100m", "Ver"},
			ChestNumber:  "417",
			Categories:   []string{"Junior"},
			SubscribedAt: time.Date(2025, time.August, 1, 10, 0, 0, 0, time.UTC),
			Event: &model.Event{
				Id:        "e1",
				Title:     "Memorial Van Damme",
				Location:  "Brussel",
				Date:      time.Date(2025, time.September, 5, 12, 0, 0, 0, time.UTC),
				DateValid: true,
			},
		},
	}}
	feed := service.NewFeedService(lister)

	cal := feed.Calendar()
	assert.Contains(t, cal, "BEGIN:VCALENDAR")
	assert.Contains(t, cal, "UID:competition-e1@trackside")
	assert.Contains(t, cal, "SUMMARY:Memorial Van Damme")
	assert.Contains(t, cal, "LOCATION:Brussel")
	assert.Contains(t, cal, "X-MICROSOFT-CDO-ALLDAYEVENT:TRUE")
	assert.Contains(t, cal, "DTSTART;VALUE=DATE:20250905")
	assert.Contains(t, cal, "Chest number: 417")
}

func TestCalendarFeedSkipsUnparseableDates(t *testing.T) {
	lister := &fakeLister{subs: []model.Subscription{
		{EventId: "e1", Event: &model.Event{Id: "e1", Title: "Datumloos", RawDate: "tbd", DateValid: false}},
		{EventId: "e2", Event: &model.Event{Id: "e2", Title: "Gepland", Date: time.Now(), DateValid: true}},
		{EventId: "e3"},
	}}
	feed := service.NewFeedService(lister)

	cal := feed.Calendar()
	assert.Equal(t, 1, strings.Count(cal, "BEGIN:VEVENT"))
	assert.NotContains(t, cal, "Datumloos")
}

func TestCalendarFeedEmpty(t *testing.T) {
	feed := service.NewFeedService(&fakeLister{})
	cal := feed.Calendar()
	assert.Contains(t, cal, "BEGIN:VCALENDAR")
	assert.Contains(t, cal, "END:VCALENDAR")
	assert.NotContains(t, cal, "BEGIN:VEVENT")
}
