package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wgoossens/trackside/api"
	"github.com/wgoossens/trackside/model"
	"github.com/wgoossens/trackside/service"
)

type fakeEventRepo struct {
	stored map[string]model.Event
	err    error
}

func newFakeEventRepo(events ...model.Event) *fakeEventRepo {
	r := &fakeEventRepo{stored: map[string]model.Event{}}
	for _, e := range events {
		r.stored[e.Id] = e
	}
	return r
}

func (r *fakeEventRepo) UpsertEvent(event *model.Event) error {
	if r.err != nil {
		return r.err
	}
	r.stored[event.Id] = *event
	return nil
}

func (r *fakeEventRepo) GetAllEvents() ([]model.Event, error) {
	if r.err != nil {
		return nil, r.err
	}
	result := make([]model.Event, 0, len(r.stored))
	for _, e := range r.stored {
		result = append(result, e)
	}
	return result, nil
}

type fakeEventSource struct {
	raw []api.RawEvent
	err error
}

func (s *fakeEventSource) SearchEvents(_ context.Context, q string, limit int) ([]api.RawEvent, error) {
	return s.raw, s.err
}

func TestCatalogLoadsFromRepo(t *testing.T) {
	repo := newFakeEventRepo(model.Event{Id: "e1", Title: "Memorial Van Damme"})
	catalog, err := service.NewCatalogService(repo, &fakeEventSource{})
	assert.NoError(t, err)
	assert.Len(t, catalog.Events(), 1)
	assert.Equal(t, "Memorial Van Damme", catalog.Get("e1").Title)
	assert.Nil(t, catalog.Get("missing"))
	assert.Nil(t, catalog.LastSync())
}

func TestCatalogSyncUpserts(t *testing.T) {
	repo := newFakeEventRepo(model.Event{Id: "e1", Title: "Old Title"})
	source := &fakeEventSource{raw: []api.RawEvent{
		{Id: "e1", Name: "Memorial Van Damme", Location: "Brussel", Date: "2025-09-05"},
		{Id: "e2", Name: "Antwerp Marathon", Location: "Antwerpen", Date: "27/4/2025"},
	}}
	catalog, _ := service.NewCatalogService(repo, source)

	assert.NoError(t, catalog.Sync(context.Background()))

	assert.Len(t, catalog.Events(), 2)
	assert.Equal(t, "Memorial Van Damme", catalog.Get("e1").Title)
	assert.Equal(t, "Antwerp Marathon", repo.stored["e2"].Title)
	assert.NotNil(t, catalog.LastSync())
}

func TestCatalogSyncErrorKeepsCache(t *testing.T) {
	repo := newFakeEventRepo(model.Event{Id: "e1"})
	catalog, _ := service.NewCatalogService(repo, &fakeEventSource{err: assert.AnError})

	assert.Error(t, catalog.Sync(context.Background()))
	assert.Len(t, catalog.Events(), 1)
	assert.Nil(t, catalog.LastSync())
}

func TestEventFromRaw(t *testing.T) {
	now := time.Date(2025, time.August, 29, 10, 0, 0, 0, time.Local)

	event := service.EventFromRaw(api.RawEvent{
		Id:          "e1",
		Name:        "Antwerp Marathon",
		Location:    "Antwerpen",
		Date:        "27/4/2025",
		Disciplines: []string{"Marathon"},
	}, now)

	assert.Equal(t, model.COMPETITION_TYPE_ROAD, event.Type)
	assert.True(t, event.DateValid)
	assert.Equal(t, time.Date(2025, time.April, 27, 12, 0, 0, 0, time.Local), event.Date)
	assert.Equal(t, "27/4/2025", event.RawDate)
	assert.Equal(t, now, event.UpdatedAt)
}

func TestEventFromRawUnparsableDate(t *testing.T) {
	event := service.EventFromRaw(api.RawEvent{
		Id:   "e1",
		Name: "Memorial Van Damme",
		Date: "ergens in september",
	}, time.Now())

	assert.False(t, event.DateValid)
	assert.Equal(t, "ergens in september", event.RawDate)
	assert.Equal(t, model.COMPETITION_TYPE_TRACK, event.Type)
}
