// Package paper simulates order lifecycle, fills and P&L without
// touching a real exchange.
package paper

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"neo-terminal/internal/errors"
	"neo-terminal/internal/models"
)

// Limits are the simulated risk limits enforced at order placement.
type Limits struct {
	MaxPositionSize int
	MaxOrderValue   float64
	MaxDailyLoss    float64
}

// DefaultLimits mirror a conservative retail risk profile.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize: 10000,
		MaxOrderValue:   10000000,
		MaxDailyLoss:    100000,
	}
}

// PriceSource supplies the last traded price for an instrument. The
// market state store satisfies it.
type PriceSource interface {
	LastPrice(key models.InstrumentKey) (float64, bool)
}

// OrderParams are the caller-supplied fields of a new paper order.
type OrderParams struct {
	TradingSymbol   string
	ExchangeSegment string
	Token           string
	TransactionType models.TransactionType
	OrderType       models.OrderType
	Product         models.ProductType
	Quantity        int
	Price           float64
	TriggerPrice    float64
	DisclosedQty    int
	Validity        string
	Tag             string
}

// ModifyParams carries the amendable fields of an order. Nil means
// leave unchanged.
type ModifyParams struct {
	Quantity     *int
	Price        *float64
	TriggerPrice *float64
	OrderType    *models.OrderType
	Validity     *string
}

// Fill is one simulated execution.
type Fill struct {
	OrderID         string
	TradingSymbol   string
	ExchangeSegment string
	TransactionType models.TransactionType
	Product         models.ProductType
	Quantity        int
	Price           float64
	FilledAt        time.Time
}

// Engine is the paper trading engine. It owns all Order records and
// posts fills to the portfolio. All reads return copies.
type Engine struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	fills     []Fill
	portfolio *Portfolio
	limits    Limits
	prices    PriceSource
	onFill    func(Fill)
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine creates a paper engine. prices may be nil; market orders
// then fill at the submitted price only.
func NewEngine(portfolio *Portfolio, limits Limits, prices PriceSource, logger zerolog.Logger) *Engine {
	return &Engine{
		orders:    make(map[string]*models.Order),
		portfolio: portfolio,
		limits:    limits,
		prices:    prices,
		logger:    logger,
		now:       time.Now,
	}
}

// OnFill registers a hook invoked after every simulated execution.
// Used to journal fills. Set once at startup.
func (e *Engine) OnFill(fn func(Fill)) {
	e.mu.Lock()
	e.onFill = fn
	e.mu.Unlock()
}

// PlaceOrder validates and stores a new order. Market orders fill
// immediately at the submitted price, falling back to the instrument's
// last traded price when no price was given. Limit and stop orders
// rest as OPEN. Validation reports every violated rule, not just the
// first.
func (e *Engine) PlaceOrder(p OrderParams) (models.Order, error) {
	if err := e.validate(p); err != nil {
		return models.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order := &models.Order{
		ID:              e.newOrderID(),
		TradingSymbol:   strings.ToUpper(p.TradingSymbol),
		ExchangeSegment: p.ExchangeSegment,
		Token:           p.Token,
		TransactionType: p.TransactionType,
		OrderType:       p.OrderType,
		Product:         p.Product,
		Quantity:        p.Quantity,
		Price:           p.Price,
		TriggerPrice:    p.TriggerPrice,
		DisclosedQty:    p.DisclosedQty,
		Validity:        p.Validity,
		Status:          models.OrderOpen,
		PlacedAt:        e.now(),
		Tag:             p.Tag,
	}
	if order.Validity == "" {
		order.Validity = "DAY"
	}
	e.orders[order.ID] = order

	if p.OrderType == models.OrderTypeMarket {
		e.fill(order, e.fillPrice(p))
	}

	e.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", order.TradingSymbol).
		Str("side", string(order.TransactionType)).
		Int("qty", order.Quantity).
		Float64("price", order.Price).
		Str("status", string(order.Status)).
		Msg("paper order placed")
	return *order, nil
}

// ModifyOrder applies the supplied fields to an open order and marks
// it MODIFIED. Terminal orders are left untouched.
func (e *Engine) ModifyOrder(orderID string, p ModifyParams) (models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return models.Order{}, &errors.NotFoundError{OrderID: orderID}
	}
	if order.Status.Terminal() {
		return models.Order{}, &errors.InvalidStateError{OrderID: orderID, Status: string(order.Status), Action: "modify"}
	}

	if p.Quantity != nil {
		order.Quantity = *p.Quantity
	}
	if p.Price != nil {
		order.Price = *p.Price
	}
	if p.TriggerPrice != nil {
		order.TriggerPrice = *p.TriggerPrice
	}
	if p.OrderType != nil {
		order.OrderType = *p.OrderType
	}
	if p.Validity != nil {
		order.Validity = *p.Validity
	}
	order.Status = models.OrderModified

	e.logger.Info().Str("order_id", orderID).Msg("paper order modified")
	return *order, nil
}

// CancelOrder cancels an open order. Terminal orders are left
// untouched.
func (e *Engine) CancelOrder(orderID string) (models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return models.Order{}, &errors.NotFoundError{OrderID: orderID}
	}
	if order.Status.Terminal() {
		return models.Order{}, &errors.InvalidStateError{OrderID: orderID, Status: string(order.Status), Action: "cancel"}
	}

	order.Status = models.OrderCancelled
	e.logger.Info().Str("order_id", orderID).Msg("paper order cancelled")
	return *order, nil
}

// GetOrder returns a copy of the order.
func (e *Engine) GetOrder(orderID string) (models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[orderID]
	if !ok {
		return models.Order{}, &errors.NotFoundError{OrderID: orderID}
	}
	return *order, nil
}

// OrderBook returns all orders, most recent first.
func (e *Engine) OrderBook() []models.Order {
	e.mu.Lock()
	out := make([]models.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].PlacedAt.After(out[j].PlacedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// TradeHistory returns all simulated fills, oldest first.
func (e *Engine) TradeHistory() []Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Fill, len(e.fills))
	copy(out, e.fills)
	return out
}

// Limits returns the active risk limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Reset drops all orders, fills and portfolio state.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.orders = make(map[string]*models.Order)
	e.fills = nil
	e.mu.Unlock()
	e.portfolio.Clear()
	e.logger.Info().Msg("paper trading state reset")
}

// validate checks the order against required fields and risk limits,
// collecting every violated rule.
func (e *Engine) validate(p OrderParams) error {
	var rules []string
	if strings.TrimSpace(p.TradingSymbol) == "" {
		rules = append(rules, "trading symbol is required")
	}
	if p.ExchangeSegment == "" {
		rules = append(rules, "exchange segment is required")
	}
	if p.TransactionType != models.TransactionBuy && p.TransactionType != models.TransactionSell {
		rules = append(rules, "transaction type must be B or S")
	}
	if p.Quantity <= 0 {
		rules = append(rules, "quantity must be positive")
	}
	if e.limits.MaxPositionSize > 0 && p.Quantity > e.limits.MaxPositionSize {
		rules = append(rules, fmt.Sprintf("quantity %d exceeds MAX_POSITION_SIZE %d", p.Quantity, e.limits.MaxPositionSize))
	}
	if e.limits.MaxOrderValue > 0 {
		if value := float64(p.Quantity) * p.Price; value > e.limits.MaxOrderValue {
			rules = append(rules, fmt.Sprintf("order value %.2f exceeds MAX_ORDER_VALUE %.2f", value, e.limits.MaxOrderValue))
		}
	}
	if e.limits.MaxDailyLoss > 0 {
		// The gate is on magnitude: a runaway profit halts trading
		// just like a runaway loss.
		if pnl := e.portfolio.TotalPositionPnL(); math.Abs(pnl) >= e.limits.MaxDailyLoss {
			rules = append(rules, fmt.Sprintf("daily P&L %.2f breaches MAX_DAILY_LOSS %.2f", pnl, e.limits.MaxDailyLoss))
		}
	}
	if len(rules) > 0 {
		return &errors.ValidationError{Rules: rules}
	}
	return nil
}

// fillPrice resolves the synthetic execution price of a market order.
func (e *Engine) fillPrice(p OrderParams) float64 {
	if p.Price > 0 {
		return p.Price
	}
	if e.prices != nil && p.Token != "" {
		key := models.InstrumentKey{Token: p.Token, Segment: p.ExchangeSegment}
		if ltp, ok := e.prices.LastPrice(key); ok {
			return ltp
		}
	}
	return 0
}

// fill marks the order complete and posts the execution to the
// portfolio. Callers hold e.mu.
func (e *Engine) fill(order *models.Order, price float64) {
	order.Status = models.OrderComplete
	order.FilledQuantity = order.Quantity
	order.AveragePrice = price

	f := Fill{
		OrderID:         order.ID,
		TradingSymbol:   order.TradingSymbol,
		ExchangeSegment: order.ExchangeSegment,
		TransactionType: order.TransactionType,
		Product:         order.Product,
		Quantity:        order.Quantity,
		Price:           price,
		FilledAt:        e.now(),
	}
	e.fills = append(e.fills, f)
	e.portfolio.RecordFill(f.TradingSymbol, f.ExchangeSegment, f.Product, f.TransactionType, f.Quantity, f.Price)
	if e.onFill != nil {
		e.onFill(f)
	}
}

// newOrderID builds a paper order id: date-prefixed with a random
// suffix, unique in practice. Callers hold e.mu.
func (e *Engine) newOrderID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PAPER_%s_%s", e.now().Format("060102"), suffix)
}
