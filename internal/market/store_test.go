package market

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"neo-terminal/internal/feed"
	"neo-terminal/internal/models"
)

var testKey = models.InstrumentKey{Token: "11536", Segment: models.SegmentNSECash}

func newTestStore() *Store {
	return NewStore(zerolog.Nop())
}

func TestApplyQuoteCreatesOnFirstSight(t *testing.T) {
	s := newTestStore()
	q := s.ApplyQuote(feed.QuoteUpdate{Key: testKey, TradingSymbol: "TCS-EQ", LTP: 3521.5, Close: 3510})

	if q.TradingSymbol != "TCS-EQ" || q.LTP != 3521.5 {
		t.Errorf("quote = %+v", q)
	}
	got, ok := s.Get(testKey)
	if !ok {
		t.Fatal("quote not stored")
	}
	if got.LTP != 3521.5 {
		t.Errorf("stored ltp = %v", got.LTP)
	}
}

func TestApplyQuoteRetainsLastKnown(t *testing.T) {
	s := newTestStore()
	s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: 100, Close: 98, Volume: 1000})

	// A sparse update must not erase known fields.
	q := s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: 101})
	if q.Close != 98 {
		t.Errorf("close = %v, want 98 retained", q.Close)
	}
	if q.Volume != 1000 {
		t.Errorf("volume = %v, want 1000 retained", q.Volume)
	}
	if q.LTP != 101 {
		t.Errorf("ltp = %v, want 101", q.LTP)
	}
}

func TestApplyQuoteLTPDerivation(t *testing.T) {
	tests := []struct {
		name   string
		update feed.QuoteUpdate
		want   float64
	}{
		{"explicit ltp wins", feed.QuoteUpdate{Key: testKey, LTP: 105, BidPrice: 100, AskPrice: 102}, 105},
		{"mid of bid and ask", feed.QuoteUpdate{Key: testKey, BidPrice: 100, AskPrice: 102}, 101},
		{"bid alone", feed.QuoteUpdate{Key: testKey, BidPrice: 100}, 100},
		{"ask alone", feed.QuoteUpdate{Key: testKey, AskPrice: 102}, 102},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			q := s.ApplyQuote(tt.update)
			if q.LTP != tt.want {
				t.Errorf("ltp = %v, want %v", q.LTP, tt.want)
			}
		})
	}
}

func TestApplyIndex(t *testing.T) {
	s := newTestStore()
	key := models.InstrumentKey{Token: "Nifty 50", Segment: models.SegmentNSECash}
	q := s.ApplyIndex(feed.IndexUpdate{Key: key, Value: 22450, Close: 22400, Change: 50, ChangePercent: 0.22})

	if q.LTP != 22450 || q.Close != 22400 {
		t.Errorf("index quote = %+v", q)
	}

	// Sparse refresh keeps the close.
	q = s.ApplyIndex(feed.IndexUpdate{Key: key, Value: 22460})
	if q.Close != 22400 {
		t.Errorf("close = %v, want retained", q.Close)
	}
}

func TestApplyDepthReplacesBookAndDerivesLTP(t *testing.T) {
	s := newTestStore()
	u := feed.DepthUpdate{Key: testKey, TradingSymbol: "TCS-EQ"}
	u.Bids[0] = models.DepthLevel{Price: 100, Quantity: 10, Orders: 1}
	u.Asks[0] = models.DepthLevel{Price: 102, Quantity: 12, Orders: 2}
	u.Bids[1] = models.DepthLevel{Price: 99, Quantity: 5, Orders: 1}

	book, quote := s.ApplyDepth(u)
	if book.BestBid() != 100 || book.BestAsk() != 102 {
		t.Errorf("top of book = %v/%v", book.BestBid(), book.BestAsk())
	}
	if quote.LTP != 101 {
		t.Errorf("derived ltp = %v, want 101", quote.LTP)
	}
	if quote.BidPrice != 100 || quote.AskPrice != 102 {
		t.Errorf("quote bid/ask = %v/%v", quote.BidPrice, quote.AskPrice)
	}

	// Next depth replaces levels wholesale: the stale level 2 must go.
	u2 := feed.DepthUpdate{Key: testKey}
	u2.Bids[0] = models.DepthLevel{Price: 101, Quantity: 8, Orders: 1}
	u2.Asks[0] = models.DepthLevel{Price: 103, Quantity: 9, Orders: 1}
	book, _ = s.ApplyDepth(u2)
	if book.Bids[1] != (models.DepthLevel{}) {
		t.Errorf("level 2 should be cleared, got %+v", book.Bids[1])
	}
}

func TestApplyDepthRecomputesChange(t *testing.T) {
	s := newTestStore()
	s.ApplyQuote(feed.QuoteUpdate{Key: testKey, Close: 100})

	u := feed.DepthUpdate{Key: testKey}
	u.Bids[0] = models.DepthLevel{Price: 104, Quantity: 1}
	u.Asks[0] = models.DepthLevel{Price: 106, Quantity: 1}
	_, quote := s.ApplyDepth(u)

	if quote.LTP != 105 {
		t.Fatalf("ltp = %v", quote.LTP)
	}
	if quote.Change != 5 {
		t.Errorf("change = %v, want 5", quote.Change)
	}
	if quote.ChangePercent != 5 {
		t.Errorf("changePercent = %v, want 5", quote.ChangePercent)
	}
}

func TestSetReferencePrices(t *testing.T) {
	s := newTestStore()
	s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: 105})

	q, applied := s.SetReferencePrices(testKey, 100, 101, 106, 99)
	if !applied {
		t.Fatal("backfill not applied")
	}
	if q.Close != 100 || q.Open != 101 || q.High != 106 || q.Low != 99 {
		t.Errorf("reference prices = %+v", q)
	}
	if q.Change != 5 {
		t.Errorf("change = %v, want recomputed 5", q.Change)
	}

	// A second backfill must not overwrite a known close.
	if _, applied := s.SetReferencePrices(testKey, 90, 0, 0, 0); applied {
		t.Error("backfill applied over an existing close")
	}

	// Unknown instruments are ignored.
	if _, applied := s.SetReferencePrices(models.InstrumentKey{Token: "x", Segment: "nse_cm"}, 100, 0, 0, 0); applied {
		t.Error("backfill applied to unknown instrument")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore()
	s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: 100})

	q, _ := s.Get(testKey)
	q.LTP = 999

	fresh, _ := s.Get(testKey)
	if fresh.LTP != 100 {
		t.Errorf("mutating a returned quote leaked into the store: %v", fresh.LTP)
	}
}

func TestGetAllOrdered(t *testing.T) {
	s := newTestStore()
	s.ApplyQuote(feed.QuoteUpdate{Key: models.InstrumentKey{Token: "2", Segment: "nse_cm"}, LTP: 2})
	s.ApplyQuote(feed.QuoteUpdate{Key: models.InstrumentKey{Token: "1", Segment: "nse_cm"}, LTP: 1})

	all := s.GetAll()
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}
	if all[0].Key.Token != "1" || all[1].Key.Token != "2" {
		t.Errorf("unexpected order: %v, %v", all[0].Key, all[1].Key)
	}
}

func TestEvict(t *testing.T) {
	s := newTestStore()
	s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: 100})
	u := feed.DepthUpdate{Key: testKey}
	u.Bids[0] = models.DepthLevel{Price: 99, Quantity: 1}
	s.ApplyDepth(u)

	s.Evict(testKey)
	if _, ok := s.Get(testKey); ok {
		t.Error("quote survived eviction")
	}
	if _, ok := s.GetDepth(testKey); ok {
		t.Error("depth survived eviction")
	}
}

func TestLastPrice(t *testing.T) {
	s := newTestStore()
	if _, ok := s.LastPrice(testKey); ok {
		t.Error("LastPrice on empty store")
	}
	s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: 100})
	ltp, ok := s.LastPrice(testKey)
	if !ok || ltp != 100 {
		t.Errorf("LastPrice = %v, %v", ltp, ok)
	}
}

type recordingScheduler struct {
	mu   sync.Mutex
	keys []models.InstrumentKey
}

func (r *recordingScheduler) MaybeBackfill(key models.InstrumentKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func TestBackfillScheduledWhenCloseMissing(t *testing.T) {
	s := newTestStore()
	sched := &recordingScheduler{}
	s.SetBackfillScheduler(sched)

	// Depth arrives with bid/ask but no close known: schedule.
	u := feed.DepthUpdate{Key: testKey}
	u.Bids[0] = models.DepthLevel{Price: 100, Quantity: 1}
	u.Asks[0] = models.DepthLevel{Price: 102, Quantity: 1}
	_, quote := s.ApplyDepth(u)
	if quote.LTP != 101 {
		t.Fatalf("ltp = %v, want 101", quote.LTP)
	}
	if sched.count() != 1 {
		t.Fatalf("backfill calls = %d, want 1", sched.count())
	}

	// Once a close is known, no further scheduling.
	s.SetReferencePrices(testKey, 100, 0, 0, 0)
	s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: 101.5})
	if sched.count() != 1 {
		t.Errorf("backfill calls = %d after close known, want 1", sched.count())
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := newTestStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: float64(j + 1)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Get(testKey)
				s.GetAll()
			}
		}()
	}
	wg.Wait()
}
