// Package memory provides in-memory reference implementations of
// subscription.SubscriptionStore and subscription.DeliverySink, for tests
// and single-node CLI use (spec §4.8). Modeled directly on
// registry/store/memory's mutex-guarded map pattern.
package memory

import (
	"context"
	"sync"

	"github.com/mberto10/researchctl/internal/subscription"
)

// Store is an in-memory subscription.SubscriptionStore. Safe for concurrent
// use.
type Store struct {
	mu   sync.RWMutex
	subs map[string]subscription.Subscription
}

var _ subscription.SubscriptionStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{subs: make(map[string]subscription.Subscription)}
}

// ListByFrequency returns every Subscription registered under frequency, in
// no particular order.
func (s *Store) ListByFrequency(_ context.Context, frequency string) ([]subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.Frequency == frequency {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Get retrieves a Subscription by ID.
func (s *Store) Get(_ context.Context, id string) (subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

// Save stores or replaces a Subscription.
func (s *Store) Save(_ context.Context, sub subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	return nil
}

// Delete removes a Subscription by ID.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return subscription.ErrNotFound
	}
	delete(s.subs, id)
	return nil
}

// Sink is an in-memory subscription.DeliverySink that records every
// Delivery it receives, for tests and CLI dry-runs that print results
// instead of dispatching a real webhook/email.
type Sink struct {
	mu         sync.Mutex
	deliveries []subscription.Delivery
}

var _ subscription.DeliverySink = (*Sink)(nil)

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Deliver records d.
func (s *Sink) Deliver(_ context.Context, d subscription.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

// Deliveries returns every Delivery recorded so far, in delivery order.
func (s *Sink) Deliveries() []subscription.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscription.Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}
