// Package market maintains the canonical per-instrument market state:
// quotes, depth books, subscriptions, reference-data backfill and
// event dispatch.
package market

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"neo-terminal/internal/feed"
	"neo-terminal/internal/models"
)

// BackfillScheduler schedules an asynchronous reference-data fetch for
// an instrument. Implementations must be non-blocking.
type BackfillScheduler interface {
	MaybeBackfill(key models.InstrumentKey)
}

// Store is the concurrent mapping from instrument key to the latest
// Quote and DepthBook. Quote fields merge under a retain-last-known
// policy; depth updates replace the book wholesale. All reads return
// copies.
type Store struct {
	mu       sync.RWMutex
	quotes   map[models.InstrumentKey]*models.Quote
	depth    map[models.InstrumentKey]*models.DepthBook
	backfill BackfillScheduler
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		quotes: make(map[models.InstrumentKey]*models.Quote),
		depth:  make(map[models.InstrumentKey]*models.DepthBook),
		logger: logger,
		now:    time.Now,
	}
}

// SetBackfillScheduler wires the backfill worker. Set once at startup,
// before ingestion begins.
func (s *Store) SetBackfillScheduler(b BackfillScheduler) {
	s.backfill = b
}

// ApplyQuote merges a stock/derivative feed record into the instrument's
// Quote, creating it on first sight, and returns the merged snapshot.
func (s *Store) ApplyQuote(u feed.QuoteUpdate) models.Quote {
	s.mu.Lock()
	q := s.quote(u.Key)

	mergeString(&q.TradingSymbol, u.TradingSymbol)
	mergeInt(&q.LastTradedQty, u.LastTradedQty)
	mergeInt(&q.Volume, u.Volume)
	mergeFloat(&q.Open, u.Open)
	mergeFloat(&q.High, u.High)
	mergeFloat(&q.Low, u.Low)
	mergeFloat(&q.Close, u.Close)
	mergeFloat(&q.Change, u.Change)
	mergeFloat(&q.ChangePercent, u.ChangePercent)
	mergeFloat(&q.BidPrice, u.BidPrice)
	mergeFloat(&q.AskPrice, u.AskPrice)
	mergeInt(&q.BidQty, u.BidQty)
	mergeInt(&q.AskQty, u.AskQty)
	mergeInt(&q.OpenInterest, u.OpenInterest)
	mergeInt(&q.TotalBuyQty, u.TotalBuyQty)
	mergeInt(&q.TotalSellQty, u.TotalSellQty)
	mergeFloat(&q.LowerCircuit, u.LowerCircuit)
	mergeFloat(&q.UpperCircuit, u.UpperCircuit)
	mergeFloat(&q.Week52High, u.Week52High)
	mergeFloat(&q.Week52Low, u.Week52Low)

	if ltp := deriveLTP(u.LTP, q.BidPrice, q.AskPrice); ltp > 0 {
		q.LTP = ltp
	}
	q.LastUpdate = s.now()

	snapshot := *q
	needsClose := q.Close == 0 && q.LTP > 0
	s.mu.Unlock()

	if needsClose && s.backfill != nil {
		s.backfill.MaybeBackfill(u.Key)
	}
	return snapshot
}

// ApplyIndex merges an index feed record into the instrument's Quote.
func (s *Store) ApplyIndex(u feed.IndexUpdate) models.Quote {
	s.mu.Lock()
	q := s.quote(u.Key)

	mergeFloat(&q.LTP, u.Value)
	mergeFloat(&q.Close, u.Close)
	mergeFloat(&q.Open, u.Open)
	mergeFloat(&q.High, u.High)
	mergeFloat(&q.Low, u.Low)
	mergeFloat(&q.Change, u.Change)
	mergeFloat(&q.ChangePercent, u.ChangePercent)
	q.LastUpdate = s.now()

	snapshot := *q
	s.mu.Unlock()
	return snapshot
}

// ApplyDepth replaces the instrument's depth book wholesale and feeds
// the top of book back into the Quote's bid/ask/ltp. Returns the new
// book and quote snapshots.
func (s *Store) ApplyDepth(u feed.DepthUpdate) (models.DepthBook, models.Quote) {
	s.mu.Lock()
	book, ok := s.depth[u.Key]
	if !ok {
		book = &models.DepthBook{Key: u.Key}
		s.depth[u.Key] = book
	}
	mergeString(&book.TradingSymbol, u.TradingSymbol)
	book.Bids = u.Bids
	book.Asks = u.Asks
	book.LastUpdate = s.now()

	q := s.quote(u.Key)
	mergeString(&q.TradingSymbol, u.TradingSymbol)
	mergeFloat(&q.BidPrice, book.BestBid())
	mergeFloat(&q.AskPrice, book.BestAsk())
	mergeInt(&q.BidQty, book.Bids[0].Quantity)
	mergeInt(&q.AskQty, book.Asks[0].Quantity)

	// Depth carries no traded price; derive one from the fresh book.
	if ltp := deriveLTP(0, book.BestBid(), book.BestAsk()); ltp > 0 {
		q.LTP = ltp
	}
	recomputeChange(q)
	q.LastUpdate = s.now()

	bookSnapshot := *book
	quoteSnapshot := *q
	needsClose := q.Close == 0 && q.LTP > 0
	s.mu.Unlock()

	if needsClose && s.backfill != nil {
		s.backfill.MaybeBackfill(u.Key)
	}
	return bookSnapshot, quoteSnapshot
}

// SetReferencePrices writes backfilled close/open/high/low into the
// Quote, but only while the store still lacks a close price. Change is
// recomputed against the new close. Reports whether anything was
// written.
func (s *Store) SetReferencePrices(key models.InstrumentKey, close, open, high, low float64) (models.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[key]
	if !ok || q.Close != 0 || close <= 0 {
		if ok {
			return *q, false
		}
		return models.Quote{}, false
	}

	q.Close = close
	mergeFloat(&q.Open, open)
	mergeFloat(&q.High, high)
	mergeFloat(&q.Low, low)
	recomputeChange(q)
	q.LastUpdate = s.now()
	return *q, true
}

// Get returns a copy of the instrument's Quote.
func (s *Store) Get(key models.InstrumentKey) (models.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[key]
	if !ok {
		return models.Quote{}, false
	}
	return *q, true
}

// GetDepth returns a copy of the instrument's DepthBook.
func (s *Store) GetDepth(key models.InstrumentKey) (models.DepthBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.depth[key]
	if !ok {
		return models.DepthBook{}, false
	}
	return *d, true
}

// GetAll returns copies of all cached quotes, ordered by key for
// stable output.
func (s *Store) GetAll() []models.Quote {
	s.mu.RLock()
	quotes := make([]models.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		quotes = append(quotes, *q)
	}
	s.mu.RUnlock()

	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Key.String() < quotes[j].Key.String()
	})
	return quotes
}

// LastPrice returns the instrument's last known LTP.
func (s *Store) LastPrice(key models.InstrumentKey) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[key]
	if !ok || q.LTP == 0 {
		return 0, false
	}
	return q.LTP, true
}

// Evict removes the instrument's Quote and DepthBook entirely.
func (s *Store) Evict(key models.InstrumentKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, key)
	delete(s.depth, key)
}

// quote returns the live record for key, creating it on first sight.
// Callers hold s.mu.
func (s *Store) quote(key models.InstrumentKey) *models.Quote {
	q, ok := s.quotes[key]
	if !ok {
		q = &models.Quote{Key: key}
		s.quotes[key] = q
	}
	return q
}

// deriveLTP applies the last-traded-price derivation priority:
// explicit ltp, then mid of bid/ask, then bid alone, then ask alone.
// Returns 0 only when nothing is known.
func deriveLTP(explicit, bid, ask float64) float64 {
	switch {
	case explicit > 0:
		return explicit
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	default:
		return ask
	}
}

// recomputeChange refreshes change/changePercent once both ltp and
// close are known. Callers hold s.mu.
func recomputeChange(q *models.Quote) {
	if q.LTP == 0 || q.Close == 0 {
		return
	}
	q.Change = q.LTP - q.Close
	q.ChangePercent = q.Change / q.Close * 100
}

// mergeFloat applies the retain-last-known rule: zero never erases a
// previously known value.
func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func mergeInt(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
