package models

import "time"

// TransactionType is the side of an order in the upstream's notation.
type TransactionType string

const (
	TransactionBuy  TransactionType = "B"
	TransactionSell TransactionType = "S"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeLimit     OrderType = "L"
	OrderTypeMarket    OrderType = "MKT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductNRML ProductType = "NRML"
	ProductCNC  ProductType = "CNC"
	ProductMIS  ProductType = "MIS"
	ProductCO   ProductType = "CO"
	ProductBO   ProductType = "BO"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderOpen      OrderStatus = "OPEN"
	OrderComplete  OrderStatus = "COMPLETE"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderModified  OrderStatus = "MODIFIED"
)

// Terminal reports whether the status is final. Terminal orders accept
// no further modification or cancellation.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderComplete, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// Order represents a trading order.
type Order struct {
	ID              string
	TradingSymbol   string
	ExchangeSegment string
	Token           string
	TransactionType TransactionType
	OrderType       OrderType
	Product         ProductType
	Quantity        int
	Price           float64
	TriggerPrice    float64
	DisclosedQty    int
	Validity        string // DAY, IOC, GTC
	Status          OrderStatus
	FilledQuantity  int
	AveragePrice    float64
	PlacedAt        time.Time
	RejectionReason string
	Tag             string
}

// Position tracks the running buy/sell accumulators for one
// symbol+segment+product. Derived quantities and P&L are computed on
// read, never stored.
type Position struct {
	TradingSymbol   string
	ExchangeSegment string
	Product         ProductType
	Token           string
	BuyQty          int
	SellQty         int
	BuyAmount       float64
	SellAmount      float64
	CFBuyQty        int
	CFSellQty       int
	CFBuyAmt        float64
	CFSellAmt       float64
	LTP             float64
	Multiplier      float64
	GenNum          float64
	GenDen          float64
	PrcNum          float64
	PrcDen          float64
	LotSize         int
	Precision       int
}

// PositionPnL is the derived P&L view of a Position.
type PositionPnL struct {
	TotalBuyQty   int
	TotalSellQty  int
	NetQty        int
	TotalBuyAmt   float64
	TotalSellAmt  float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalPnL      float64
	BuyAvgPrice   float64
	SellAvgPrice  float64
	AvgPrice      float64
	LTP           float64
}

// Holding represents a delivery holding.
type Holding struct {
	Symbol          string
	TradingSymbol   string
	ExchangeSegment string
	Token           string
	Quantity        int
	SellableQty     int
	AveragePrice    float64
	HoldingCost     float64
	CurrentPrice    float64
}

// HoldingPnL is the derived P&L view of a Holding.
type HoldingPnL struct {
	Quantity     int
	AveragePrice float64
	CurrentPrice float64
	HoldingCost  float64
	CurrentValue float64
	PnL          float64
	PnLPercent   float64
}
