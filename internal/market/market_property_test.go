package market

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"neo-terminal/internal/feed"
)

// Property: applying any sequence of sparse quote updates never erases
// a previously known field. Once a field has been non-zero, it stays
// non-zero through arbitrary later updates.
func TestProperty_RetainLastKnownNeverErases(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	sparseUpdate := gopter.CombineGens(
		gen.Float64Range(0, 5000),
		gen.Float64Range(0, 5000),
		gen.Float64Range(0, 5000),
		gen.Int64Range(0, 100000),
	).Map(func(vals []interface{}) feed.QuoteUpdate {
		return feed.QuoteUpdate{
			Key:    testKey,
			LTP:    vals[0].(float64),
			Close:  vals[1].(float64),
			Open:   vals[2].(float64),
			Volume: vals[3].(int64),
		}
	})

	properties.Property("known fields survive sparse updates", prop.ForAll(
		func(updates []feed.QuoteUpdate) bool {
			s := newTestStore()
			var seenClose, seenOpen, seenVolume bool
			for _, u := range updates {
				q := s.ApplyQuote(u)
				seenClose = seenClose || u.Close != 0
				seenOpen = seenOpen || u.Open != 0
				seenVolume = seenVolume || u.Volume != 0
				if seenClose && q.Close == 0 {
					return false
				}
				if seenOpen && q.Open == 0 {
					return false
				}
				if seenVolume && q.Volume == 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(sparseUpdate),
	))

	properties.Property("reads are copies, rereads are stable", prop.ForAll(
		func(ltp float64) bool {
			s := newTestStore()
			s.ApplyQuote(feed.QuoteUpdate{Key: testKey, LTP: ltp})
			first, ok1 := s.Get(testKey)
			second, ok2 := s.Get(testKey)
			if ok1 != ok2 {
				return false
			}
			if !ok1 {
				return true
			}
			return first.LTP == second.LTP
		},
		gen.Float64Range(0.05, 100000),
	))

	properties.TestingRun(t)
}

// Property: the derived LTP always respects the priority order and is
// never negative for non-negative inputs.
func TestProperty_LTPDerivationPriority(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("derivation priority holds", prop.ForAll(
		func(explicit, bid, ask float64) bool {
			got := deriveLTP(explicit, bid, ask)
			switch {
			case explicit > 0:
				return got == explicit
			case bid > 0 && ask > 0:
				return got == (bid+ask)/2
			case bid > 0:
				return got == bid
			default:
				return got == ask
			}
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}
