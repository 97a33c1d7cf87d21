package market

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"neo-terminal/internal/broker"
	"neo-terminal/internal/models"
)

// backfillCooldown is the minimum interval between reference-data
// fetch attempts for one instrument.
const backfillCooldown = 60 * time.Second

type fetchAttempt struct {
	at         time.Time
	generation uint64
}

// Backfiller fetches missing reference prices (previous close, open,
// high, low) over the broker's REST quote API when the live feed never
// delivered them. Attempts are throttled per instrument and recorded
// before the fetch starts, so a hung request cannot trigger a stampede.
type Backfiller struct {
	mu         sync.Mutex
	attempts   map[models.InstrumentKey]fetchAttempt
	generation uint64

	store    *Store
	client   broker.Client
	onUpdate func(models.Quote)
	logger   zerolog.Logger

	ctx context.Context
	now func() time.Time
	wg  sync.WaitGroup
}

// NewBackfiller creates a backfiller bound to the store. onUpdate is
// invoked with the refreshed quote after a successful backfill; it may
// be nil. client may be nil, in which case scheduling is a no-op.
func NewBackfiller(ctx context.Context, store *Store, client broker.Client, onUpdate func(models.Quote), logger zerolog.Logger) *Backfiller {
	return &Backfiller{
		attempts: make(map[models.InstrumentKey]fetchAttempt),
		store:    store,
		client:   client,
		onUpdate: onUpdate,
		logger:   logger,
		ctx:      ctx,
		now:      time.Now,
	}
}

// MaybeBackfill schedules an asynchronous reference-data fetch for key
// unless one was attempted within the cooldown window. Safe to call
// from the ingest hot path; the fetch itself runs on its own goroutine.
func (b *Backfiller) MaybeBackfill(key models.InstrumentKey) {
	if b.client == nil || key.IsZero() {
		return
	}
	b.mu.Lock()
	prev, ok := b.attempts[key]
	if ok && prev.generation == b.generation && b.now().Sub(prev.at) < backfillCooldown {
		b.mu.Unlock()
		return
	}
	b.attempts[key] = fetchAttempt{at: b.now(), generation: b.generation}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.fetch(key)
}

// Invalidate discards all recorded attempts, allowing immediate
// re-fetch. Called after a feed reconnect.
func (b *Backfiller) Invalidate() {
	b.mu.Lock()
	b.generation++
	b.mu.Unlock()
}

// Wait blocks until all in-flight fetches complete. Test hook and
// shutdown aid.
func (b *Backfiller) Wait() {
	b.wg.Wait()
}

func (b *Backfiller) fetch(key models.InstrumentKey) {
	defer b.wg.Done()

	records, err := b.client.QuoteSnapshot(b.ctx, []models.InstrumentKey{key})
	if err != nil {
		b.logger.Debug().Err(err).Str("instrument", key.String()).Msg("reference price fetch failed")
		return
	}
	for _, rec := range records {
		closePx := pickNumber(rec, "close", "c", "closePrice", "prevClose")
		if closePx <= 0 {
			continue
		}
		openPx := pickNumber(rec, "open", "op", "openingPrice")
		highPx := pickNumber(rec, "high", "h", "highPrice")
		lowPx := pickNumber(rec, "low", "lo", "lowPrice")

		q, applied := b.store.SetReferencePrices(key, closePx, openPx, highPx, lowPx)
		if !applied {
			continue
		}
		b.logger.Debug().Str("instrument", key.String()).Float64("close", closePx).Msg("backfilled reference prices")
		if b.onUpdate != nil {
			b.onUpdate(q)
		}
	}
}

// pickNumber returns the first present, positive numeric value among
// the candidate field spellings.
func pickNumber(rec broker.SnapshotRecord, names ...string) float64 {
	for _, name := range names {
		v, ok := rec[name]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n > 0 {
				return n
			}
		case int:
			if n > 0 {
				return float64(n)
			}
		case int64:
			if n > 0 {
				return float64(n)
			}
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil && f > 0 {
				return f
			}
		}
	}
	return 0
}
