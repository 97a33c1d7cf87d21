package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"neo-terminal/internal/errors"
	"neo-terminal/internal/models"
)

// Feed type discriminator values used by the upstream.
const (
	feedNameStock = "sf"
	feedNameIndex = "if"
	feedNameDepth = "dp"
)

// Parse normalizes one opaque inbound payload into zero or more
// canonical records. The payload may be a single record, a batch
// envelope ({"data":[...]}), or a bare JSON array. A bad element
// inside a batch never sinks its siblings: the valid records are
// returned alongside the error so the caller can apply them and log
// what was dropped.
func Parse(payload []byte) ([]Record, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedFeed, err.Error())
	}
	return normalizeValue(raw)
}

func normalizeValue(raw any) ([]Record, error) {
	switch v := raw.(type) {
	case []any:
		var records []Record
		bad := 0
		for _, elem := range v {
			recs, err := normalizeValue(elem)
			records = append(records, recs...)
			if err != nil {
				bad++
			}
		}
		if bad > 0 {
			return records, fmt.Errorf("%w: %d of %d batch records unusable", errors.ErrMalformedFeed, bad, len(v))
		}
		return records, nil
	case map[string]any:
		// Batch envelope: recurse into the contained array.
		if data, ok := v["data"].([]any); ok {
			return normalizeValue(data)
		}
		return []Record{classify(v)}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected payload shape %T", errors.ErrMalformedFeed, raw)
	}
}

// classify maps a single key-value record onto a canonical record.
// Unrecognized messages fall back to best-effort price data rather
// than being dropped.
func classify(m map[string]any) Record {
	switch fieldStr(m, "name") {
	case feedNameStock:
		return quoteUpdate(m)
	case feedNameIndex:
		return indexUpdate(m)
	case feedNameDepth:
		return depthUpdate(m)
	}
	if _, ok := m["ordSt"]; ok {
		return orderUpdate(m)
	}
	if _, ok := m["nOrdNo"]; ok {
		return orderUpdate(m)
	}
	return quoteUpdate(m)
}

func quoteUpdate(m map[string]any) QuoteUpdate {
	return QuoteUpdate{
		Key: models.InstrumentKey{
			Token:   fieldStr(m, "tk"),
			Segment: fieldStr(m, "e"),
		},
		TradingSymbol: fieldStr(m, "ts"),
		LTP:           fieldNum(m, "ltp"),
		LastTradedQty: fieldInt(m, "ltq"),
		Volume:        fieldInt(m, "v"),
		Open:          fieldNum(m, "op"),
		High:          fieldNum(m, "h"),
		Low:           fieldNum(m, "lo"),
		Close:         fieldNum(m, "c"),
		Change:        fieldNum(m, "cng"),
		ChangePercent: fieldNum(m, "nc"),
		BidPrice:      fieldNum(m, "bp"),
		AskPrice:      fieldNum(m, "sp"),
		BidQty:        fieldInt(m, "bq"),
		AskQty:        fieldInt(m, "sq"),
		OpenInterest:  fieldInt(m, "oi"),
		TotalBuyQty:   fieldInt(m, "tbq"),
		TotalSellQty:  fieldInt(m, "tsq"),
		LowerCircuit:  fieldNum(m, "lcl"),
		UpperCircuit:  fieldNum(m, "ucl"),
		Week52High:    fieldNum(m, "yh"),
		Week52Low:     fieldNum(m, "yl"),
	}
}

func indexUpdate(m map[string]any) IndexUpdate {
	segment := fieldStr(m, "e")
	if segment == "" {
		segment = models.SegmentNSECash
	}
	return IndexUpdate{
		Key: models.InstrumentKey{
			Token:   fieldStr(m, "tk"),
			Segment: segment,
		},
		Value:         fieldNum(m, "iv"),
		Close:         fieldNum(m, "ic"),
		Open:          fieldNum(m, "openingPrice"),
		High:          fieldNum(m, "highPrice"),
		Low:           fieldNum(m, "lowPrice"),
		Change:        fieldNum(m, "cng"),
		ChangePercent: fieldNum(m, "nc"),
	}
}

func depthUpdate(m map[string]any) DepthUpdate {
	u := DepthUpdate{
		Key: models.InstrumentKey{
			Token:   fieldStr(m, "tk"),
			Segment: fieldStr(m, "e"),
		},
		TradingSymbol: fieldStr(m, "ts"),
	}
	for i := 0; i < models.DepthLevels; i++ {
		// Level 1 carries no numeric suffix; levels 2-5 do. Order
		// counts are always numbered, and ask quantities come in as
		// "bs" -- both quirks of the upstream wire format.
		suffix := ""
		if i > 0 {
			suffix = strconv.Itoa(i + 1)
		}
		u.Bids[i] = models.DepthLevel{
			Price:    fieldNum(m, "bp"+suffix),
			Quantity: fieldInt(m, "bq"+suffix),
			Orders:   fieldInt(m, "bno"+strconv.Itoa(i+1)),
		}
		u.Asks[i] = models.DepthLevel{
			Price:    fieldNum(m, "sp"+suffix),
			Quantity: fieldInt(m, "bs"+suffix),
			Orders:   fieldInt(m, "sno"+strconv.Itoa(i+1)),
		}
	}
	return u
}

func orderUpdate(m map[string]any) OrderUpdate {
	return OrderUpdate{OrderStatusUpdate: models.OrderStatusUpdate{
		OrderID:         fieldStr(m, "nOrdNo"),
		Status:          fieldStr(m, "ordSt"),
		TradingSymbol:   fieldStr(m, "trdSym"),
		ExchangeSegment: fieldStr(m, "exSeg"),
		TransactionType: fieldStr(m, "trnsTp"),
		Quantity:        int(fieldInt(m, "qty")),
		FilledQuantity:  int(fieldInt(m, "fldQty")),
		Price:           fieldNum(m, "prc"),
		RejectionReason: fieldStr(m, "rejRsn"),
		Timestamp:       time.Now(),
	}}
}

// fieldStr returns the string value of a field, stringifying numeric
// tokens. Instrument tokens arrive both quoted and bare.
func fieldStr(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// fieldNum returns the numeric value of a field. Provider payloads mix
// JSON numbers and numeric strings; both parse, anything else is 0.
func fieldNum(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func fieldInt(m map[string]any, key string) int64 {
	return int64(fieldNum(m, key))
}
