package market

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"neo-terminal/internal/broker"
	"neo-terminal/internal/models"
)

// Subscription records what was requested for one instrument.
type Subscription struct {
	Key     models.InstrumentKey
	IsIndex bool
	IsDepth bool
}

// Subscriptions tracks which instruments the terminal follows and
// keeps the upstream feed in sync. Re-subscribing a key overwrites its
// flags. Unsubscribing evicts the instrument's cached state.
type Subscriptions struct {
	mu      sync.Mutex
	entries map[models.InstrumentKey]Subscription
	store   *Store
	client  broker.Client
	logger  zerolog.Logger
}

// NewSubscriptions creates a registry bound to the given store. client
// may be nil when running without an upstream connection.
func NewSubscriptions(store *Store, client broker.Client, logger zerolog.Logger) *Subscriptions {
	return &Subscriptions{
		entries: make(map[models.InstrumentKey]Subscription),
		store:   store,
		client:  client,
		logger:  logger,
	}
}

// Subscribe registers the keys and forwards them upstream. Keys
// already subscribed with the same flags are skipped.
func (s *Subscriptions) Subscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error {
	s.mu.Lock()
	fresh := make([]models.InstrumentKey, 0, len(keys))
	for _, k := range keys {
		if k.IsZero() {
			continue
		}
		next := Subscription{Key: k, IsIndex: isIndex, IsDepth: isDepth}
		if prev, ok := s.entries[k]; ok && prev == next {
			continue
		}
		s.entries[k] = next
		fresh = append(fresh, k)
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	s.logger.Debug().Int("count", len(fresh)).Bool("index", isIndex).Bool("depth", isDepth).Msg("subscribing")
	if s.client == nil {
		return nil
	}
	return s.client.Subscribe(ctx, fresh, isIndex, isDepth)
}

// Unsubscribe removes the keys, forwards the removal upstream and
// evicts their cached quotes and depth. Unknown keys are ignored.
func (s *Subscriptions) Unsubscribe(ctx context.Context, keys []models.InstrumentKey) error {
	s.mu.Lock()
	removed := make([]Subscription, 0, len(keys))
	for _, k := range keys {
		sub, ok := s.entries[k]
		if !ok {
			continue
		}
		delete(s.entries, k)
		removed = append(removed, sub)
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	var indexKeys, depthKeys, quoteKeys []models.InstrumentKey
	for _, sub := range removed {
		s.store.Evict(sub.Key)
		switch {
		case sub.IsIndex:
			indexKeys = append(indexKeys, sub.Key)
		case sub.IsDepth:
			depthKeys = append(depthKeys, sub.Key)
		default:
			quoteKeys = append(quoteKeys, sub.Key)
		}
	}
	s.logger.Debug().Int("count", len(removed)).Msg("unsubscribing")
	if s.client == nil {
		return nil
	}
	var firstErr error
	for _, batch := range []struct {
		keys    []models.InstrumentKey
		isIndex bool
		isDepth bool
	}{
		{quoteKeys, false, false},
		{indexKeys, true, false},
		{depthKeys, false, true},
	} {
		if len(batch.keys) == 0 {
			continue
		}
		if err := s.client.Unsubscribe(ctx, batch.keys, batch.isIndex, batch.isDepth); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// List returns the current subscriptions ordered by key.
func (s *Subscriptions) List() []Subscription {
	s.mu.Lock()
	subs := make([]Subscription, 0, len(s.entries))
	for _, sub := range s.entries {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Key.String() < subs[j].Key.String()
	})
	return subs
}

// Contains reports whether the key is subscribed.
func (s *Subscriptions) Contains(key models.InstrumentKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Resubscribe replays every current subscription upstream. Called
// after a feed reconnect.
func (s *Subscriptions) Resubscribe(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	s.mu.Lock()
	var indexKeys, depthKeys, quoteKeys []models.InstrumentKey
	for _, sub := range s.entries {
		switch {
		case sub.IsIndex:
			indexKeys = append(indexKeys, sub.Key)
		case sub.IsDepth:
			depthKeys = append(depthKeys, sub.Key)
		default:
			quoteKeys = append(quoteKeys, sub.Key)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, batch := range []struct {
		keys    []models.InstrumentKey
		isIndex bool
		isDepth bool
	}{
		{quoteKeys, false, false},
		{indexKeys, true, false},
		{depthKeys, false, true},
	} {
		if len(batch.keys) == 0 {
			continue
		}
		if err := s.client.Subscribe(ctx, batch.keys, batch.isIndex, batch.isDepth); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
