package market

import (
	"sync"

	"github.com/rs/zerolog"

	"neo-terminal/internal/models"
)

// orderRingSize bounds the retained order-update history.
const orderRingSize = 100

// PriceHandler receives merged quote snapshots.
type PriceHandler func(models.Quote)

// DepthHandler receives replaced depth books.
type DepthHandler func(models.DepthBook)

// OrderHandler receives order-status updates.
type OrderHandler func(models.OrderStatusUpdate)

// ConnectionHandler receives feed connectivity transitions.
type ConnectionHandler func(connected bool)

// Dispatcher fans events out to registered handlers. Each event kind
// has a single slot: registering a handler replaces the previous one.
// A panicking handler is recovered and logged; it never takes down the
// ingest loop. Order updates are additionally retained in a bounded
// ring for later inspection.
type Dispatcher struct {
	mu         sync.RWMutex
	onPrice    PriceHandler
	onDepth    DepthHandler
	onOrder    OrderHandler
	onConn     ConnectionHandler
	orderRing  []models.OrderStatusUpdate
	orderStart int
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher with no handlers registered.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// OnPrice registers the price handler. nil clears it.
func (d *Dispatcher) OnPrice(h PriceHandler) {
	d.mu.Lock()
	d.onPrice = h
	d.mu.Unlock()
}

// OnDepth registers the depth handler. nil clears it.
func (d *Dispatcher) OnDepth(h DepthHandler) {
	d.mu.Lock()
	d.onDepth = h
	d.mu.Unlock()
}

// OnOrder registers the order-update handler. nil clears it.
func (d *Dispatcher) OnOrder(h OrderHandler) {
	d.mu.Lock()
	d.onOrder = h
	d.mu.Unlock()
}

// OnConnection registers the connectivity handler. nil clears it.
func (d *Dispatcher) OnConnection(h ConnectionHandler) {
	d.mu.Lock()
	d.onConn = h
	d.mu.Unlock()
}

// EmitPrice delivers a quote snapshot to the price handler.
func (d *Dispatcher) EmitPrice(q models.Quote) {
	d.mu.RLock()
	h := d.onPrice
	d.mu.RUnlock()
	if h != nil {
		d.safeCall("price", func() { h(q) })
	}
}

// EmitDepth delivers a depth book to the depth handler.
func (d *Dispatcher) EmitDepth(book models.DepthBook) {
	d.mu.RLock()
	h := d.onDepth
	d.mu.RUnlock()
	if h != nil {
		d.safeCall("depth", func() { h(book) })
	}
}

// EmitOrder records the update in the ring and delivers it to the
// order handler.
func (d *Dispatcher) EmitOrder(u models.OrderStatusUpdate) {
	d.mu.Lock()
	if len(d.orderRing) < orderRingSize {
		d.orderRing = append(d.orderRing, u)
	} else {
		d.orderRing[d.orderStart] = u
		d.orderStart = (d.orderStart + 1) % orderRingSize
	}
	h := d.onOrder
	d.mu.Unlock()
	if h != nil {
		d.safeCall("order", func() { h(u) })
	}
}

// EmitConnection delivers a connectivity transition.
func (d *Dispatcher) EmitConnection(connected bool) {
	d.mu.RLock()
	h := d.onConn
	d.mu.RUnlock()
	if h != nil {
		d.safeCall("connection", func() { h(connected) })
	}
}

// RecentOrderUpdates returns the retained order updates, oldest first.
func (d *Dispatcher) RecentOrderUpdates() []models.OrderStatusUpdate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.OrderStatusUpdate, 0, len(d.orderRing))
	for i := 0; i < len(d.orderRing); i++ {
		out = append(out, d.orderRing[(d.orderStart+i)%len(d.orderRing)])
	}
	return out
}

func (d *Dispatcher) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("handler", kind).Msg("event handler panicked")
		}
	}()
	fn()
}
