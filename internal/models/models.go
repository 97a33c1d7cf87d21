// Package models provides domain models for the trading terminal.
package models

import (
	"fmt"
	"time"
)

// ExchangeSegment identifies an exchange segment in the upstream's notation.
type ExchangeSegment = string

const (
	SegmentNSECash ExchangeSegment = "nse_cm"
	SegmentBSECash ExchangeSegment = "bse_cm"
	SegmentNSEFO   ExchangeSegment = "nse_fo"
	SegmentBSEFO   ExchangeSegment = "bse_fo"
)

// InstrumentKey uniquely identifies a tradable instrument as
// (exchange-assigned token, exchange segment). Comparison is exact
// and case-sensitive on both fields.
type InstrumentKey struct {
	Token   string
	Segment string
}

func (k InstrumentKey) String() string {
	return fmt.Sprintf("%s_%s", k.Token, k.Segment)
}

// IsZero reports whether the key is empty.
func (k InstrumentKey) IsZero() bool {
	return k.Token == "" && k.Segment == ""
}

// Quote holds the latest known market state for one instrument.
// Numeric fields follow a retain-last-known policy: a zero or missing
// value in an update never erases a previously known non-zero value.
type Quote struct {
	Key           InstrumentKey
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
	LastUpdate    time.Time
}

// DepthLevels is the fixed number of price levels per side of the book.
const DepthLevels = 5

// DepthLevel is a single price level of market depth.
type DepthLevel struct {
	Price    float64
	Quantity int64
	Orders   int64
}

// DepthBook holds the five best bid and ask levels for one instrument.
// A depth update replaces both sides wholesale.
type DepthBook struct {
	Key           InstrumentKey
	TradingSymbol string
	Bids          [DepthLevels]DepthLevel
	Asks          [DepthLevels]DepthLevel
	LastUpdate    time.Time
}

// BestBid returns the top-of-book bid price.
func (d *DepthBook) BestBid() float64 { return d.Bids[0].Price }

// BestAsk returns the top-of-book ask price.
func (d *DepthBook) BestAsk() float64 { return d.Asks[0].Price }

// OrderStatusUpdate is a status record delivered on the order feed.
type OrderStatusUpdate struct {
	OrderID         string
	Status          string
	TradingSymbol   string
	ExchangeSegment string
	TransactionType string
	Quantity        int
	FilledQuantity  int
	Price           float64
	RejectionReason string
	Timestamp       time.Time
}
