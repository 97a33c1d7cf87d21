package terminal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"neo-terminal/internal/broker"
	"neo-terminal/internal/config"
	"neo-terminal/internal/models"
	"neo-terminal/internal/paper"
)

type stubClient struct {
	mu        sync.Mutex
	snapshots []broker.SnapshotRecord
	fetches   int
	placed    []broker.OrderRequest
}

func (s *stubClient) Subscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error {
	return nil
}

func (s *stubClient) Unsubscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error {
	return nil
}

func (s *stubClient) QuoteSnapshot(ctx context.Context, keys []models.InstrumentKey) ([]broker.SnapshotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.snapshots, nil
}

func (s *stubClient) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *stubClient) PlaceOrder(ctx context.Context, p broker.OrderRequest) (broker.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed = append(s.placed, p)
	return broker.OrderResult{OrderID: "LIVE-1", Status: "Ok"}, nil
}

func (s *stubClient) ModifyOrder(ctx context.Context, orderID string, p broker.OrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{OrderID: orderID}, nil
}

func (s *stubClient) CancelOrder(ctx context.Context, orderID string) (broker.OrderResult, error) {
	return broker.OrderResult{OrderID: orderID}, nil
}

func (s *stubClient) OrderReport(ctx context.Context) ([]broker.OrderReportRow, error) {
	return nil, nil
}

type memJournal struct {
	mu    sync.Mutex
	fills []paper.Fill
}

func (m *memJournal) LogFill(f paper.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, f)
	return nil
}

func paperConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{Mode: "paper", DefaultExchange: models.SegmentNSECash, PaperCash: 1000000},
		Risk: config.RiskConfig{
			MaxPositionSize:  10000,
			MaxOrderValue:    10000000,
			MaxDailyLoss:     100000,
			MISMarginFactor:  0.2,
			NRMLMarginFactor: 0.5,
		},
	}
}

func newTestTerminal(client broker.Client, journal FillJournal) *Terminal {
	return New(context.Background(), paperConfig(), client, journal, zerolog.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDepthUpdateDerivesQuoteAndSchedulesBackfill(t *testing.T) {
	client := &stubClient{snapshots: []broker.SnapshotRecord{{"close": 100.5}}}
	term := newTestTerminal(client, nil)
	ctx := context.Background()

	key := models.InstrumentKey{Token: "11536", Segment: models.SegmentNSECash}
	if err := term.Subscribe(ctx, []models.InstrumentKey{key}, false, true); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Depth with bid 100 / ask 102, no explicit ltp, no close known.
	term.ingestor.Apply([]byte(`{"name":"dp","tk":"11536","e":"nse_cm","bp":"100","bq":"10","sp":"102","bs":"12"}`))

	q, ok := term.Quote(key)
	if !ok {
		t.Fatal("no quote after depth")
	}
	if q.LTP != 101 {
		t.Errorf("ltp = %v, want 101", q.LTP)
	}

	waitFor(t, func() bool { return client.fetchCount() == 1 })
	waitFor(t, func() bool {
		q, _ := term.Quote(key)
		return q.Close == 100.5
	})
}

func TestPaperOrderEndToEnd(t *testing.T) {
	journal := &memJournal{}
	term := newTestTerminal(nil, journal)
	ctx := context.Background()

	// Prime an LTP so a priceless market order can fill.
	term.ingestor.Apply([]byte(`{"name":"sf","tk":"11536","e":"nse_cm","ts":"TCS-EQ","ltp":"3521.5"}`))

	order, err := term.PlaceOrder(ctx, paper.OrderParams{
		TradingSymbol:   "TCS-EQ",
		ExchangeSegment: models.SegmentNSECash,
		Token:           "11536",
		TransactionType: models.TransactionBuy,
		OrderType:       models.OrderTypeMarket,
		Product:         models.ProductMIS,
		Quantity:        10,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.Status != models.OrderComplete {
		t.Errorf("status = %s", order.Status)
	}
	if order.AveragePrice != 3521.5 {
		t.Errorf("fill price = %v, want cached LTP", order.AveragePrice)
	}

	positions := term.Positions()
	if len(positions) != 1 {
		t.Fatalf("positions = %d", len(positions))
	}
	if positions[0].PnL.NetQty != 10 {
		t.Errorf("netQty = %d", positions[0].PnL.NetQty)
	}

	journal.mu.Lock()
	journaled := len(journal.fills)
	journal.mu.Unlock()
	if journaled != 1 {
		t.Errorf("journaled fills = %d", journaled)
	}

	d := term.DashboardSummary()
	if d.TotalOrders != 1 || d.Positions != 1 || d.Mode != "paper" {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestPriceEventsMarkPositions(t *testing.T) {
	term := newTestTerminal(nil, nil)
	ctx := context.Background()

	term.PlaceOrder(ctx, paper.OrderParams{
		TradingSymbol:   "TCS-EQ",
		ExchangeSegment: models.SegmentNSECash,
		TransactionType: models.TransactionBuy,
		OrderType:       models.OrderTypeMarket,
		Product:         models.ProductMIS,
		Quantity:        10,
		Price:           3500,
	})

	// A later feed tick moves the mark.
	term.ingestor.Apply([]byte(`{"name":"sf","tk":"11536","e":"nse_cm","ts":"TCS-EQ","ltp":"3550"}`))

	positions := term.Positions()
	if positions[0].PnL.LTP != 3550 {
		t.Errorf("mark = %v, want 3550", positions[0].PnL.LTP)
	}
	if positions[0].PnL.UnrealizedPnL != 35500 {
		t.Errorf("unrealized = %v", positions[0].PnL.UnrealizedPnL)
	}
}

func TestLiveModeRoutesToBroker(t *testing.T) {
	client := &stubClient{}
	cfg := paperConfig()
	cfg.Trading.Mode = "live"
	term := New(context.Background(), cfg, client, nil, zerolog.Nop())

	order, err := term.PlaceOrder(context.Background(), paper.OrderParams{
		TradingSymbol:   "TCS-EQ",
		ExchangeSegment: models.SegmentNSECash,
		TransactionType: models.TransactionBuy,
		OrderType:       models.OrderTypeLimit,
		Product:         models.ProductMIS,
		Quantity:        10,
		Price:           3500,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.ID != "LIVE-1" {
		t.Errorf("order id = %s", order.ID)
	}
	if len(client.placed) != 1 {
		t.Errorf("broker orders = %d", len(client.placed))
	}
	if len(term.OrderBook()) != 0 {
		t.Error("live order leaked into the paper book")
	}
}

func TestMarginRequired(t *testing.T) {
	term := newTestTerminal(nil, nil)

	tests := []struct {
		product models.ProductType
		want    float64
	}{
		{models.ProductMIS, 7000},
		{models.ProductNRML, 17500},
		{models.ProductCNC, 35000},
	}
	for _, tt := range tests {
		got := term.MarginRequired(paper.OrderParams{Product: tt.product, Quantity: 10, Price: 3500})
		if got != tt.want {
			t.Errorf("%s margin = %v, want %v", tt.product, got, tt.want)
		}
	}
}

func TestFundsSnapshot(t *testing.T) {
	term := newTestTerminal(nil, nil)
	ctx := context.Background()

	f := term.Funds()
	if f.AvailableCash != 1000000 || f.UsedMargin != 0 || f.AvailableMargin != 1000000 {
		t.Fatalf("flat funds = %+v", f)
	}

	// An open MIS position blocks margin at the factor.
	term.PlaceOrder(ctx, paper.OrderParams{
		TradingSymbol:   "TCS-EQ",
		ExchangeSegment: models.SegmentNSECash,
		TransactionType: models.TransactionBuy,
		OrderType:       models.OrderTypeMarket,
		Product:         models.ProductMIS,
		Quantity:        10,
		Price:           3500,
	})

	f = term.Funds()
	if f.UsedMargin != 7000 {
		t.Errorf("used margin = %v, want 7000", f.UsedMargin)
	}
	if f.AvailableMargin != 993000 {
		t.Errorf("available margin = %v, want 993000", f.AvailableMargin)
	}
	if term.DashboardSummary().AvailableMargin != 993000 {
		t.Error("dashboard does not carry the funds snapshot")
	}
}

func TestUnsubscribeDropsQuotes(t *testing.T) {
	term := newTestTerminal(nil, nil)
	ctx := context.Background()

	key := models.InstrumentKey{Token: "11536", Segment: models.SegmentNSECash}
	term.Subscribe(ctx, []models.InstrumentKey{key}, false, false)
	term.ingestor.Apply([]byte(`{"name":"sf","tk":"11536","e":"nse_cm","ltp":"100"}`))

	if _, ok := term.Quote(key); !ok {
		t.Fatal("quote missing before unsubscribe")
	}
	term.Unsubscribe(ctx, []models.InstrumentKey{key})
	if _, ok := term.Quote(key); ok {
		t.Error("quote survived unsubscribe")
	}
}

func TestOnFeedConnectedInvalidatesBackfill(t *testing.T) {
	client := &stubClient{snapshots: []broker.SnapshotRecord{{}}}
	term := newTestTerminal(client, nil)

	// Quote without close triggers one fetch; the empty snapshot
	// leaves close unset, and the cooldown suppresses a second.
	term.ingestor.Apply([]byte(`{"name":"sf","tk":"1","e":"nse_cm","ltp":"100"}`))
	waitFor(t, func() bool { return client.fetchCount() == 1 })

	term.ingestor.Apply([]byte(`{"name":"sf","tk":"1","e":"nse_cm","ltp":"101"}`))
	term.backfiller.Wait()
	if client.fetchCount() != 1 {
		t.Fatalf("fetches = %d, want 1 within cooldown", client.fetchCount())
	}

	// Reconnect invalidates the attempt record.
	term.OnFeedConnected(context.Background())
	term.ingestor.Apply([]byte(`{"name":"sf","tk":"1","e":"nse_cm","ltp":"102"}`))
	waitFor(t, func() bool { return client.fetchCount() == 2 })
}

func TestFeedConnectedFlag(t *testing.T) {
	term := newTestTerminal(nil, nil)
	if term.FeedConnected() {
		t.Fatal("connected before any feed event")
	}
	term.OnFeedConnected(context.Background())
	if !term.FeedConnected() {
		t.Fatal("not connected after connect event")
	}
	if !term.DashboardSummary().FeedConnected {
		t.Fatal("dashboard does not reflect connected feed")
	}
	term.OnFeedDisconnected()
	if term.FeedConnected() {
		t.Fatal("still connected after disconnect event")
	}
}

func TestOrderFeedFlagTrackedSeparately(t *testing.T) {
	term := newTestTerminal(nil, nil)

	term.OnFeedConnected(context.Background())
	status := term.SubscriptionStatus()
	if !status.FeedConnected || status.OrderFeedConnected {
		t.Fatalf("status = %+v, want market up and order feed down", status)
	}

	term.OnOrderFeedConnected()
	if !term.OrderFeedConnected() {
		t.Fatal("order feed not connected after connect event")
	}
	term.OnOrderFeedDisconnected()
	status = term.SubscriptionStatus()
	if !status.FeedConnected || status.OrderFeedConnected {
		t.Fatalf("status = %+v, want order feed down again", status)
	}
}
