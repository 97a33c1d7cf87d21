package market

import (
	"context"

	"github.com/rs/zerolog"

	"neo-terminal/internal/feed"
)

// Ingestor drains raw feed messages, normalizes them and applies them
// to the store, emitting events for each applied record. A malformed
// message is logged and skipped; it never stops the loop.
type Ingestor struct {
	store      *Store
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewIngestor creates an ingestor bound to the store and dispatcher.
func NewIngestor(store *Store, dispatcher *Dispatcher, logger zerolog.Logger) *Ingestor {
	return &Ingestor{store: store, dispatcher: dispatcher, logger: logger}
}

// Run consumes messages until ctx is cancelled or the channel closes.
func (in *Ingestor) Run(ctx context.Context, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			in.Apply(msg)
		}
	}
}

// Apply normalizes one raw message and applies every record it carries.
func (in *Ingestor) Apply(msg []byte) {
	records, err := feed.Parse(msg)
	if err != nil {
		if len(records) == 0 {
			in.logger.Warn().Err(err).Int("bytes", len(msg)).Msg("dropping malformed feed message")
			return
		}
		in.logger.Warn().Err(err).Int("kept", len(records)).Msg("dropping malformed feed records")
	}
	for _, rec := range records {
		switch r := rec.(type) {
		case feed.QuoteUpdate:
			if r.Key.IsZero() {
				continue
			}
			in.dispatcher.EmitPrice(in.store.ApplyQuote(r))
		case feed.IndexUpdate:
			if r.Key.IsZero() {
				continue
			}
			in.dispatcher.EmitPrice(in.store.ApplyIndex(r))
		case feed.DepthUpdate:
			if r.Key.IsZero() {
				continue
			}
			book, quote := in.store.ApplyDepth(r)
			in.dispatcher.EmitDepth(book)
			in.dispatcher.EmitPrice(quote)
		case feed.OrderUpdate:
			in.dispatcher.EmitOrder(r.OrderStatusUpdate)
		}
	}
}
