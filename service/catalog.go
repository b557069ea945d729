package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/wgoossens/trackside/api"
	"github.com/wgoossens/trackside/discovery"
	"github.com/wgoossens/trackside/model"
)

const searchLimit = 500

type EventRepo interface {
	UpsertEvent(event *model.Event) error
	GetAllEvents() ([]model.Event, error)
}

type EventSource interface {
	SearchEvents(ctx context.Context, q string, limit int) ([]api.RawEvent, error)
}

// CatalogService holds the competition catalog: an in-memory map keyed by
// event id, loaded from the local cache at start and refreshed from the
// gateway by Sync.
type CatalogService struct {
	mu       sync.RWMutex
	events   map[string]*model.Event
	repo     EventRepo
	source   EventSource
	lastSync *time.Time
	syncing  bool
}

func NewCatalogService(repo EventRepo, source EventSource) (*CatalogService, error) {
	s := CatalogService{events: map[string]*model.Event{}, repo: repo, source: source}
	err := s.init()
	return &s, err
}

func (s *CatalogService) init() error {
	log.Printf("Load events from db")
	events, err := s.repo.GetAllEvents()
	if err != nil {
		return err
	}
	for i := range events {
		e := events[i]
		s.events[e.Id] = &e
	}
	log.Printf("Loaded %d events from db", len(events))
	return nil
}

func (s *CatalogService) Get(id string) *model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[id]
}

// Events returns a snapshot copy, safe to filter and sort in place.
func (s *CatalogService) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		result = append(result, *e)
	}
	return result
}

// Sync pulls the catalog from the gateway and upserts it into the cache.
// A sync already in flight makes re-entrant calls no-ops.
func (s *CatalogService) Sync(ctx context.Context) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil
	}
	s.syncing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	log.Printf("Catalog sync start")
	raw, err := s.source.SearchEvents(ctx, "", searchLimit)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range raw {
		event := EventFromRaw(raw[i], now)
		s.mu.Lock()
		s.events[event.Id] = &event
		s.mu.Unlock()
		if err := s.repo.UpsertEvent(&event); err != nil {
			log.Printf("Could not cache event %s: %s", event.Id, err.Error())
			return err
		}
	}

	s.mu.Lock()
	s.lastSync = &now
	s.mu.Unlock()

	log.Printf("Catalog sync done, %d events", len(raw))
	return nil
}

func (s *CatalogService) LastSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSync == nil {
		return nil
	}
	t := *s.lastSync
	return &t
}

// EventFromRaw applies the load-time derivations once per event: the type
// heuristic and the defensive date parse.
func EventFromRaw(raw api.RawEvent, now time.Time) model.Event {
	date, valid := discovery.ParseEventDate(raw.Date)
	return model.Event{
		Id:             raw.Id,
		Title:          raw.Name,
		Location:       raw.Location,
		RawDate:        raw.Date,
		Date:           date,
		DateValid:      valid,
		Type:           discovery.InferType(raw.Type, raw.Name, raw.Location),
		OrganizingClub: raw.OrganizingClub,
		Thumbnail:      raw.Thumbnail,
		Disciplines:    raw.Disciplines,
		UpdatedAt:      now,
	}
}
