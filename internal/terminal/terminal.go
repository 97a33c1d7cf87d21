// Package terminal composes the market engine, the paper engine and
// the broker client behind one façade.
package terminal

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"neo-terminal/internal/broker"
	"neo-terminal/internal/config"
	"neo-terminal/internal/errors"
	"neo-terminal/internal/market"
	"neo-terminal/internal/models"
	"neo-terminal/internal/paper"
	"neo-terminal/pkg/utils"
)

// FillJournal records simulated executions durably.
type FillJournal interface {
	LogFill(paper.Fill) error
}

// Terminal is the application façade. Construction wires the market
// state plumbing; all trading and market reads go through it.
type Terminal struct {
	cfg        *config.Config
	store      *market.Store
	subs       *market.Subscriptions
	dispatcher *market.Dispatcher
	backfiller *market.Backfiller
	ingestor   *market.Ingestor
	portfolio  *paper.Portfolio
	engine     *paper.Engine
	client     broker.Client
	logger     zerolog.Logger

	connected      atomic.Bool
	orderConnected atomic.Bool
}

// New builds a terminal from its parts. client may be nil (paper-only
// operation without an upstream); journal may be nil.
func New(ctx context.Context, cfg *config.Config, client broker.Client, journal FillJournal, logger zerolog.Logger) *Terminal {
	store := market.NewStore(logger)
	dispatcher := market.NewDispatcher(logger)
	backfiller := market.NewBackfiller(ctx, store, client, dispatcher.EmitPrice, logger)
	store.SetBackfillScheduler(backfiller)

	portfolio := paper.NewPortfolio()
	limits := paper.Limits{
		MaxPositionSize: cfg.Risk.MaxPositionSize,
		MaxOrderValue:   cfg.Risk.MaxOrderValue,
		MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
	}
	engine := paper.NewEngine(portfolio, limits, store, logger)
	if journal != nil {
		engine.OnFill(func(f paper.Fill) {
			if err := journal.LogFill(f); err != nil {
				logger.Warn().Err(err).Str("order_id", f.OrderID).Msg("journaling fill failed")
			}
		})
	}

	t := &Terminal{
		cfg:        cfg,
		store:      store,
		subs:       market.NewSubscriptions(store, client, logger),
		dispatcher: dispatcher,
		backfiller: backfiller,
		ingestor:   market.NewIngestor(store, dispatcher, logger),
		portfolio:  portfolio,
		engine:     engine,
		client:     client,
		logger:     logger,
	}

	// Feed prices into unrealized P&L as they arrive. The terminal
	// holds the dispatcher's price slot; UI handlers register through
	// OnPrice below so marking survives.
	t.OnPrice(nil)
	return t
}

// OnPrice registers a price handler downstream of the portfolio
// marking. nil clears the downstream handler but keeps marking alive.
func (t *Terminal) OnPrice(h market.PriceHandler) {
	t.dispatcher.OnPrice(func(q models.Quote) {
		if q.TradingSymbol != "" {
			t.portfolio.MarkPrice(q.TradingSymbol, q.LTP)
		}
		if h != nil {
			h(q)
		}
	})
}

// Ingest drains raw feed messages until ctx is cancelled or the
// channel closes.
func (t *Terminal) Ingest(ctx context.Context, messages <-chan []byte) {
	t.ingestor.Run(ctx, messages)
}

// OnFeedConnected handles a feed (re)connect: recorded backfill
// attempts are invalidated and every subscription is replayed.
func (t *Terminal) OnFeedConnected(ctx context.Context) {
	t.connected.Store(true)
	t.backfiller.Invalidate()
	if err := t.subs.Resubscribe(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("resubscribe after reconnect failed")
	}
	t.dispatcher.EmitConnection(true)
}

// OnFeedDisconnected propagates a feed drop to listeners.
func (t *Terminal) OnFeedDisconnected() {
	t.connected.Store(false)
	t.dispatcher.EmitConnection(false)
}

// FeedConnected reports whether the live feed is currently up.
func (t *Terminal) FeedConnected() bool { return t.connected.Load() }

// OnOrderFeedConnected marks the order-status feed up. The order feed
// needs an authenticated session, so it is tracked apart from the
// market feed.
func (t *Terminal) OnOrderFeedConnected() { t.orderConnected.Store(true) }

// OnOrderFeedDisconnected marks the order-status feed down.
func (t *Terminal) OnOrderFeedDisconnected() { t.orderConnected.Store(false) }

// OrderFeedConnected reports whether the order-status feed is up.
func (t *Terminal) OrderFeedConnected() bool { return t.orderConnected.Load() }

// Dispatcher exposes the event listener registrations.
func (t *Terminal) Dispatcher() *market.Dispatcher { return t.dispatcher }

// Quote returns the instrument's latest quote.
func (t *Terminal) Quote(key models.InstrumentKey) (models.Quote, bool) {
	return t.store.Get(key)
}

// Quotes returns all cached quotes.
func (t *Terminal) Quotes() []models.Quote {
	return t.store.GetAll()
}

// Depth returns the instrument's latest depth book.
func (t *Terminal) Depth(key models.InstrumentKey) (models.DepthBook, bool) {
	return t.store.GetDepth(key)
}

// Subscribe registers instruments on the feed.
func (t *Terminal) Subscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error {
	return t.subs.Subscribe(ctx, keys, isIndex, isDepth)
}

// Unsubscribe removes instruments from the feed and drops their state.
func (t *Terminal) Unsubscribe(ctx context.Context, keys []models.InstrumentKey) error {
	return t.subs.Unsubscribe(ctx, keys)
}

// Subscriptions lists the current subscriptions.
func (t *Terminal) Subscriptions() []market.Subscription {
	return t.subs.List()
}

// SubscriptionStatus pairs the subscription listing with the state of
// both feed connections.
type SubscriptionStatus struct {
	Entries            []market.Subscription
	FeedConnected      bool
	OrderFeedConnected bool
}

// SubscriptionStatus reports the subscriptions and connection flags.
func (t *Terminal) SubscriptionStatus() SubscriptionStatus {
	return SubscriptionStatus{
		Entries:            t.subs.List(),
		FeedConnected:      t.connected.Load(),
		OrderFeedConnected: t.orderConnected.Load(),
	}
}

// PlaceOrder routes an order to the paper engine or the live broker
// depending on the configured trading mode.
func (t *Terminal) PlaceOrder(ctx context.Context, p paper.OrderParams) (models.Order, error) {
	if t.cfg.IsPaperMode() {
		return t.engine.PlaceOrder(p)
	}
	if t.client == nil {
		return models.Order{}, errors.ErrNotConnected
	}
	res, err := t.client.PlaceOrder(ctx, broker.OrderRequest{
		TradingSymbol:   p.TradingSymbol,
		ExchangeSegment: p.ExchangeSegment,
		TransactionType: p.TransactionType,
		OrderType:       p.OrderType,
		Product:         p.Product,
		Quantity:        p.Quantity,
		Price:           p.Price,
		TriggerPrice:    p.TriggerPrice,
		Validity:        p.Validity,
		Tag:             p.Tag,
	})
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID:              res.OrderID,
		TradingSymbol:   p.TradingSymbol,
		ExchangeSegment: p.ExchangeSegment,
		TransactionType: p.TransactionType,
		OrderType:       p.OrderType,
		Product:         p.Product,
		Quantity:        p.Quantity,
		Price:           p.Price,
		Status:          models.OrderPending,
	}, nil
}

// ModifyOrder amends an order in the active mode.
func (t *Terminal) ModifyOrder(ctx context.Context, orderID string, p paper.ModifyParams) (models.Order, error) {
	if t.cfg.IsPaperMode() {
		return t.engine.ModifyOrder(orderID, p)
	}
	if t.client == nil {
		return models.Order{}, errors.ErrNotConnected
	}
	req := broker.OrderRequest{}
	if p.Quantity != nil {
		req.Quantity = *p.Quantity
	}
	if p.Price != nil {
		req.Price = *p.Price
	}
	if p.TriggerPrice != nil {
		req.TriggerPrice = *p.TriggerPrice
	}
	if p.OrderType != nil {
		req.OrderType = *p.OrderType
	}
	if p.Validity != nil {
		req.Validity = *p.Validity
	}
	res, err := t.client.ModifyOrder(ctx, orderID, req)
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{ID: res.OrderID, Status: models.OrderModified}, nil
}

// CancelOrder cancels an order in the active mode.
func (t *Terminal) CancelOrder(ctx context.Context, orderID string) (models.Order, error) {
	if t.cfg.IsPaperMode() {
		return t.engine.CancelOrder(orderID)
	}
	if t.client == nil {
		return models.Order{}, errors.ErrNotConnected
	}
	res, err := t.client.CancelOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{ID: res.OrderID, Status: models.OrderCancelled}, nil
}

// OrderBook lists paper orders, most recent first.
func (t *Terminal) OrderBook() []models.Order {
	return t.engine.OrderBook()
}

// TradeHistory lists simulated fills, oldest first.
func (t *Terminal) TradeHistory() []paper.Fill {
	return t.engine.TradeHistory()
}

// RecentOrderUpdates returns the retained order-feed updates.
func (t *Terminal) RecentOrderUpdates() []models.OrderStatusUpdate {
	return t.dispatcher.RecentOrderUpdates()
}

// PositionReport pairs a position with its derived P&L.
type PositionReport struct {
	Position models.Position
	PnL      models.PositionPnL
}

// HoldingReport pairs a holding with its derived P&L.
type HoldingReport struct {
	Holding models.Holding
	PnL     models.HoldingPnL
}

// Positions reports all positions with current P&L.
func (t *Terminal) Positions() []PositionReport {
	positions := t.portfolio.Positions()
	out := make([]PositionReport, 0, len(positions))
	for _, pos := range positions {
		out = append(out, PositionReport{Position: pos, PnL: paper.ComputePositionPnL(pos)})
	}
	return out
}

// Holdings reports all holdings with current P&L.
func (t *Terminal) Holdings() []HoldingReport {
	holdings := t.portfolio.Holdings()
	out := make([]HoldingReport, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, HoldingReport{Holding: h, PnL: paper.ComputeHoldingPnL(h)})
	}
	return out
}

// MarginRequired estimates the margin blocked by an order: full value
// for delivery, a configured fraction for intraday and carry-forward
// products.
func (t *Terminal) MarginRequired(p paper.OrderParams) float64 {
	value := float64(p.Quantity) * p.Price
	switch p.Product {
	case models.ProductMIS, models.ProductCO, models.ProductBO:
		return value * t.cfg.Risk.MISMarginFactor
	case models.ProductNRML:
		return value * t.cfg.Risk.NRMLMarginFactor
	default:
		return value
	}
}

// Funds is the simulated paper-trading funds snapshot.
type Funds struct {
	AvailableCash   float64
	UsedMargin      float64
	AvailableMargin float64
	TotalCollateral float64
}

// Funds reports the simulated funds: the configured paper cash with
// margin blocked by open positions at their last price.
func (t *Terminal) Funds() Funds {
	f := Funds{AvailableCash: t.cfg.Trading.PaperCash}
	var used float64
	for _, r := range t.Positions() {
		net := r.PnL.NetQty
		if net < 0 {
			net = -net
		}
		if net == 0 || r.Position.LTP <= 0 {
			continue
		}
		used += t.MarginRequired(paper.OrderParams{
			Product:  r.Position.Product,
			Quantity: net,
			Price:    r.Position.LTP,
		})
	}
	f.UsedMargin = utils.Round(used, 2)
	f.AvailableMargin = utils.Round(f.AvailableCash-f.UsedMargin, 2)
	return f
}

// Limits returns the active paper risk limits.
func (t *Terminal) Limits() paper.Limits {
	return t.engine.Limits()
}

// Dashboard is a point-in-time account summary.
type Dashboard struct {
	Mode            string
	FeedConnected   bool
	Subscriptions   int
	OpenOrders      int
	TotalOrders     int
	Positions       int
	RealizedPnL     float64
	UnrealizedPnL   float64
	TotalPnL        float64
	AvailableMargin float64
}

// DashboardSummary aggregates the terminal's state for display.
func (t *Terminal) DashboardSummary() Dashboard {
	d := Dashboard{
		Mode:          t.cfg.Trading.Mode,
		FeedConnected: t.connected.Load(),
		Subscriptions: len(t.subs.List()),
	}
	for _, o := range t.engine.OrderBook() {
		d.TotalOrders++
		if !o.Status.Terminal() {
			d.OpenOrders++
		}
	}
	for _, r := range t.Positions() {
		d.Positions++
		d.RealizedPnL += r.PnL.RealizedPnL
		d.UnrealizedPnL += r.PnL.UnrealizedPnL
	}
	d.TotalPnL = d.RealizedPnL + d.UnrealizedPnL
	d.AvailableMargin = t.Funds().AvailableMargin
	return d
}

// ClearPaperData resets the paper engine and portfolio.
func (t *Terminal) ClearPaperData() {
	t.engine.Reset()
}
