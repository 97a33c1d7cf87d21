// Package broker defines the upstream broker client surface and its
// Neo HTTP implementation.
package broker

import (
	"context"

	"neo-terminal/internal/models"
)

// SnapshotRecord is one instrument's quote snapshot as returned by the
// broker's REST quote API, in the upstream's short-field notation.
type SnapshotRecord map[string]any

// OrderResult is the broker's acknowledgement of an order operation.
type OrderResult struct {
	OrderID string
	Status  string
	Message string
}

// OrderReportRow is one row of the broker's order report.
type OrderReportRow struct {
	OrderID         string
	Status          string
	TradingSymbol   string
	TransactionType string
	Quantity        int
	FilledQuantity  int
	Price           float64
	RejectionReason string
}

// Client is the upstream broker surface the terminal depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	// Subscribe registers instrument keys on the live feed. isIndex
	// selects the index feed, isDepth the depth feed.
	Subscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error

	// Unsubscribe removes instrument keys from the live feed.
	Unsubscribe(ctx context.Context, keys []models.InstrumentKey, isIndex, isDepth bool) error

	// QuoteSnapshot fetches a REST quote snapshot for the given keys.
	QuoteSnapshot(ctx context.Context, keys []models.InstrumentKey) ([]SnapshotRecord, error)

	// PlaceOrder submits a live order.
	PlaceOrder(ctx context.Context, p OrderRequest) (OrderResult, error)

	// ModifyOrder amends a live order.
	ModifyOrder(ctx context.Context, orderID string, p OrderRequest) (OrderResult, error)

	// CancelOrder cancels a live order.
	CancelOrder(ctx context.Context, orderID string) (OrderResult, error)

	// OrderReport fetches the day's order report.
	OrderReport(ctx context.Context) ([]OrderReportRow, error)
}

// OrderRequest is the broker-facing order payload.
type OrderRequest struct {
	TradingSymbol   string
	ExchangeSegment string
	TransactionType models.TransactionType
	OrderType       models.OrderType
	Product         models.ProductType
	Quantity        int
	Price           float64
	TriggerPrice    float64
	Validity        string
	Tag             string
}
