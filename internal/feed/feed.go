// Package feed normalizes heterogeneous upstream feed messages into
// canonical record types.
package feed

import (
	"neo-terminal/internal/models"
)

// Record is a canonical feed record. The concrete types are
// QuoteUpdate, IndexUpdate, DepthUpdate and OrderUpdate; consumers
// type-switch on them.
type Record interface {
	feedRecord()
}

// QuoteUpdate carries price fields from a stock/derivative feed
// message. Zero means the field was absent from the message.
type QuoteUpdate struct {
	Key           models.InstrumentKey
	TradingSymbol string
	LTP           float64
	LastTradedQty int64
	Volume        int64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Change        float64
	ChangePercent float64
	BidPrice      float64
	AskPrice      float64
	BidQty        int64
	AskQty        int64
	OpenInterest  int64
	TotalBuyQty   int64
	TotalSellQty  int64
	LowerCircuit  float64
	UpperCircuit  float64
	Week52High    float64
	Week52Low     float64
}

// IndexUpdate carries the reduced field set of an index feed message.
type IndexUpdate struct {
	Key           models.InstrumentKey
	Value         float64
	Close         float64
	Open          float64
	High          float64
	Low           float64
	Change        float64
	ChangePercent float64
}

// DepthUpdate carries a full five-level order book snapshot.
type DepthUpdate struct {
	Key           models.InstrumentKey
	TradingSymbol string
	Bids          [models.DepthLevels]models.DepthLevel
	Asks          [models.DepthLevels]models.DepthLevel
}

// OrderUpdate carries an order-status record from the order feed.
type OrderUpdate struct {
	models.OrderStatusUpdate
}

func (QuoteUpdate) feedRecord() {}
func (IndexUpdate) feedRecord() {}
func (DepthUpdate) feedRecord() {}
func (OrderUpdate) feedRecord() {}
