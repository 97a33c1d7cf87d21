package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"neo-terminal/internal/models"
	"neo-terminal/pkg/utils"
)

// parseKeys turns "token_segment" arguments into instrument keys.
func parseKeys(args []string, defaultSegment string) ([]models.InstrumentKey, error) {
	keys := make([]models.InstrumentKey, 0, len(args))
	for _, arg := range args {
		token, segment, found := strings.Cut(arg, "_")
		if !found {
			segment = defaultSegment
		}
		if token == "" || segment == "" {
			return nil, fmt.Errorf("invalid instrument %q, expected token_segment", arg)
		}
		keys = append(keys, models.InstrumentKey{Token: token, Segment: segment})
	}
	return keys, nil
}

func newQuoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quote [token_segment...]",
		Short: "Show cached quotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, q := range app.Terminal.Quotes() {
					printQuote(cmd, q)
				}
				return nil
			}
			keys, err := parseKeys(args, app.Config.Trading.DefaultExchange)
			if err != nil {
				return err
			}
			for _, key := range keys {
				q, ok := app.Terminal.Quote(key)
				if !ok {
					cmd.Printf("%s: no data\n", key)
					continue
				}
				printQuote(cmd, q)
			}
			return nil
		},
	}
}

func printQuote(cmd *cobra.Command, q models.Quote) {
	cmd.Printf("%-12s %-20s ltp=%.2f (%s) o=%.2f h=%.2f l=%.2f c=%.2f vol=%s\n",
		q.Key, q.TradingSymbol, q.LTP, utils.FormatPercent(q.ChangePercent),
		q.Open, q.High, q.Low, q.Close, utils.FormatQuantity(q.Volume))
}

func newDepthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "depth <token_segment>",
		Short: "Show the cached depth book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args, app.Config.Trading.DefaultExchange)
			if err != nil {
				return err
			}
			book, ok := app.Terminal.Depth(keys[0])
			if !ok {
				return fmt.Errorf("no depth for %s", keys[0])
			}
			cmd.Printf("%s %s\n", book.Key, book.TradingSymbol)
			cmd.Printf("%10s %8s %4s | %4s %8s %10s\n", "BID", "QTY", "ORD", "ORD", "QTY", "ASK")
			for i := 0; i < models.DepthLevels; i++ {
				bid, ask := book.Bids[i], book.Asks[i]
				cmd.Printf("%10.2f %8d %4d | %4d %8d %10.2f\n",
					bid.Price, bid.Quantity, bid.Orders, ask.Orders, ask.Quantity, ask.Price)
			}
			return nil
		},
	}
}

func newSubscribeCmd(app *App) *cobra.Command {
	var isIndex, isDepth bool
	cmd := &cobra.Command{
		Use:   "subscribe <token_segment...>",
		Short: "Subscribe instruments on the live feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args, app.Config.Trading.DefaultExchange)
			if err != nil {
				return err
			}
			if err := app.Terminal.Subscribe(cmd.Context(), keys, isIndex, isDepth); err != nil {
				return err
			}
			cmd.Printf("subscribed %d instrument(s)\n", len(keys))
			return nil
		},
	}
	cmd.Flags().BoolVar(&isIndex, "index", false, "subscribe on the index feed")
	cmd.Flags().BoolVar(&isDepth, "depth", false, "subscribe on the depth feed")
	return cmd
}

func newUnsubscribeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <token_segment...>",
		Short: "Unsubscribe instruments and drop their cached state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args, app.Config.Trading.DefaultExchange)
			if err != nil {
				return err
			}
			if err := app.Terminal.Unsubscribe(cmd.Context(), keys); err != nil {
				return err
			}
			cmd.Printf("unsubscribed %d instrument(s)\n", len(keys))
			return nil
		},
	}
}

func newSubscriptionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "subscriptions",
		Short: "List active subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := app.Terminal.SubscriptionStatus()
			cmd.Printf("feed: %s, order feed: %s\n",
				feedState(status.FeedConnected), feedState(status.OrderFeedConnected))
			subs := status.Entries
			if len(subs) == 0 {
				cmd.Println("no subscriptions")
				return nil
			}
			for _, sub := range subs {
				kind := "quote"
				switch {
				case sub.IsIndex:
					kind = "index"
				case sub.IsDepth:
					kind = "depth"
				}
				cmd.Printf("%-20s %s\n", sub.Key, kind)
			}
			return nil
		},
	}
}
