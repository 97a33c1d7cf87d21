package paper

import (
	"sort"
	"sync"

	"neo-terminal/internal/models"
	"neo-terminal/pkg/utils"
)

// positionKey identifies one position bucket.
type positionKey struct {
	symbol  string
	segment string
	product models.ProductType
}

// Portfolio accumulates paper fills into positions and holdings and
// derives P&L on read. It owns its records; all reads return copies.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[positionKey]*models.Position
	holdings  map[string]*models.Holding
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		positions: make(map[positionKey]*models.Position),
		holdings:  make(map[string]*models.Holding),
	}
}

// RecordFill accumulates one fill into the matching position, creating
// it on first sight, and marks the position's LTP at the fill price.
func (p *Portfolio) RecordFill(symbol, segment string, product models.ProductType, side models.TransactionType, quantity int, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := positionKey{symbol: symbol, segment: segment, product: product}
	pos, ok := p.positions[key]
	if !ok {
		pos = &models.Position{
			TradingSymbol:   symbol,
			ExchangeSegment: segment,
			Product:         product,
			Multiplier:      1,
			GenNum:          1,
			GenDen:          1,
			PrcNum:          1,
			PrcDen:          1,
			LotSize:         1,
			Precision:       2,
		}
		p.positions[key] = pos
	}

	amount := float64(quantity) * price * priceFactor(pos)
	if side == models.TransactionBuy {
		pos.BuyQty += quantity
		pos.BuyAmount += amount
	} else {
		pos.SellQty += quantity
		pos.SellAmount += amount
	}
	pos.LTP = price
}

// MarkPrice refreshes the LTP of every position for the symbol. Feed
// price events land here so unrealized P&L tracks the market.
func (p *Portfolio) MarkPrice(symbol string, ltp float64) {
	if ltp <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pos := range p.positions {
		if pos.TradingSymbol == symbol {
			pos.LTP = ltp
		}
	}
	if h, ok := p.holdings[symbol]; ok {
		h.CurrentPrice = ltp
	}
}

// Positions returns copies of all positions, ordered by symbol.
func (p *Portfolio) Positions() []models.Position {
	p.mu.RLock()
	out := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TradingSymbol != out[j].TradingSymbol {
			return out[i].TradingSymbol < out[j].TradingSymbol
		}
		return out[i].Product < out[j].Product
	})
	return out
}

// Holdings returns copies of all holdings, ordered by symbol.
func (p *Portfolio) Holdings() []models.Holding {
	p.mu.RLock()
	out := make([]models.Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, *h)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TradingSymbol < out[j].TradingSymbol })
	return out
}

// SetHolding installs or replaces a delivery holding.
func (p *Portfolio) SetHolding(h models.Holding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := h
	p.holdings[h.TradingSymbol] = &copied
}

// TotalPositionPnL sums the total P&L across all positions. The paper
// engine's daily-loss check reads this.
func (p *Portfolio) TotalPositionPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total float64
	for _, pos := range p.positions {
		total += ComputePositionPnL(*pos).TotalPnL
	}
	return total
}

// Clear drops all positions and holdings.
func (p *Portfolio) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = make(map[positionKey]*models.Position)
	p.holdings = make(map[string]*models.Holding)
}

// ComputePositionPnL derives the P&L view of a position. It is a pure
// function of its input: calling it twice on an unchanged position
// yields identical output.
func ComputePositionPnL(pos models.Position) models.PositionPnL {
	factor := priceFactor(&pos)
	precision := pos.Precision
	if precision <= 0 {
		precision = 2
	}

	totalBuyQty := pos.CFBuyQty + pos.BuyQty
	totalSellQty := pos.CFSellQty + pos.SellQty
	netQty := totalBuyQty - totalSellQty
	totalBuyAmt := pos.CFBuyAmt + pos.BuyAmount
	totalSellAmt := pos.CFSellAmt + pos.SellAmount

	realized := totalSellAmt - totalBuyAmt
	unrealized := float64(netQty) * pos.LTP * factor

	var buyAvg, sellAvg float64
	if totalBuyQty > 0 {
		buyAvg = totalBuyAmt / (float64(totalBuyQty) * factor)
	}
	if totalSellQty > 0 {
		sellAvg = totalSellAmt / (float64(totalSellQty) * factor)
	}

	// The reported average follows the dominant side; a flat position
	// has no meaningful average.
	var avg float64
	switch {
	case totalBuyQty > totalSellQty:
		avg = buyAvg
	case totalSellQty > totalBuyQty:
		avg = sellAvg
	}

	return models.PositionPnL{
		TotalBuyQty:   totalBuyQty,
		TotalSellQty:  totalSellQty,
		NetQty:        netQty,
		TotalBuyAmt:   utils.Round(totalBuyAmt, precision),
		TotalSellAmt:  utils.Round(totalSellAmt, precision),
		RealizedPnL:   utils.Round(realized, precision),
		UnrealizedPnL: utils.Round(unrealized, precision),
		TotalPnL:      utils.Round(realized+unrealized, precision),
		BuyAvgPrice:   utils.Round(buyAvg, precision),
		SellAvgPrice:  utils.Round(sellAvg, precision),
		AvgPrice:      utils.Round(avg, precision),
		LTP:           pos.LTP,
	}
}

// ComputeHoldingPnL derives the P&L view of a holding. A zero holding
// cost yields a zero percentage rather than a division fault.
func ComputeHoldingPnL(h models.Holding) models.HoldingPnL {
	currentValue := float64(h.Quantity) * h.CurrentPrice
	pnl := currentValue - h.HoldingCost
	var pct float64
	if h.HoldingCost > 0 {
		pct = pnl / h.HoldingCost * 100
	}
	return models.HoldingPnL{
		Quantity:     h.Quantity,
		AveragePrice: utils.Round(h.AveragePrice, 2),
		CurrentPrice: h.CurrentPrice,
		HoldingCost:  utils.Round(h.HoldingCost, 2),
		CurrentValue: utils.Round(currentValue, 2),
		PnL:          utils.Round(pnl, 2),
		PnLPercent:   utils.Round(pct, 2),
	}
}

// priceFactor is the contract multiplier applied to raw quantities.
// Unset components default to 1 so cash-equity positions are unscaled.
func priceFactor(pos *models.Position) float64 {
	factor := pos.Multiplier
	if factor == 0 {
		factor = 1
	}
	genNum, genDen := pos.GenNum, pos.GenDen
	if genNum == 0 {
		genNum = 1
	}
	if genDen == 0 {
		genDen = 1
	}
	prcNum, prcDen := pos.PrcNum, pos.PrcDen
	if prcNum == 0 {
		prcNum = 1
	}
	if prcDen == 0 {
		prcDen = 1
	}
	return factor * (genNum / genDen) * (prcNum / prcDen)
}
