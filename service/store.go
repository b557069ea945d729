package service

import (
	"context"
	"log"
	"sync"

	"github.com/wgoossens/trackside/api"
	"github.com/wgoossens/trackside/model"
)

type SubscriptionSource interface {
	GetSubscribedEvents(ctx context.Context) ([]api.RawSubscription, error)
}

type SubscriptionRepo interface {
	ReplaceSubscriptions(subs []model.Subscription) error
	GetSubscriptions() ([]model.Subscription, error)
}

// SubscriptionStore holds the authenticated user's subscribed competitions.
// Refresh fully replaces the list, no partial merges; without a session the
// list is simply empty. Readers always get copies.
type SubscriptionStore struct {
	mu         sync.RWMutex
	subs       []model.Subscription
	source     SubscriptionSource
	repo       SubscriptionRepo
	refreshing bool
}

func NewSubscriptionStore(repo SubscriptionRepo, source SubscriptionSource) (*SubscriptionStore, error) {
	s := &SubscriptionStore{source: source, repo: repo}
	subs, err := repo.GetSubscriptions()
	if err != nil {
		return nil, err
	}
	s.subs = subs
	return s, nil
}

// Refresh replaces the list with the gateway's current view. A refresh in
// flight makes re-entrant calls no-ops.
func (s *SubscriptionStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	s.refreshing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	raw, err := s.source.GetSubscribedEvents(ctx)
	if err != nil {
		return err
	}

	subs := make([]model.Subscription, 0, len(raw))
	for _, r := range raw {
		event := EventFromRaw(r.Event, r.SubscribedAt)
		subs = append(subs, model.Subscription{
			EventId:      r.Event.Id,
			Disciplines:  r.Disciplines,
			ChestNumber:  r.ChestNumber,
			Categories:   r.Categories,
			SubscribedAt: r.SubscribedAt,
			Event:        &event,
		})
	}

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()

	if err := s.repo.ReplaceSubscriptions(subs); err != nil {
		log.Printf("Could not persist subscriptions: %s", err.Error())
	}
	return nil
}

// Events returns a copy; callers must not see each other's mutations.
func (s *SubscriptionStore) Events() []model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Subscription, len(s.subs))
	copy(result, s.subs)
	return result
}

func (s *SubscriptionStore) Get(eventId string) *model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.subs {
		if s.subs[i].EventId == eventId {
			sub := s.subs[i]
			return &sub
		}
	}
	return nil
}

// DisplayName is the derived name for a subscribed competition, falling back
// to the id when the event carries no title.
func (s *SubscriptionStore) DisplayName(eventId string) string {
	sub := s.Get(eventId)
	if sub == nil || sub.Event == nil || sub.Event.Title == "" {
		return "Competition " + eventId
	}
	return sub.Event.Title
}
