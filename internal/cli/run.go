package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"neo-terminal/internal/broker"
	"neo-terminal/internal/feed"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the live feed and run the ingestion loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Config.Feed.URL == "" {
				return fmt.Errorf("feed.url is not configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			headers := map[string]string{}
			authed := false
			if neo, ok := app.Broker.(*broker.NeoClient); ok {
				if err := neo.Login(ctx); err != nil {
					return err
				}
				headers["Authorization"] = "Bearer " + neo.SessionToken()
				authed = true
			}

			source := feed.NewWSSource(feed.WSSourceConfig{
				URL:        app.Config.Feed.URL,
				Headers:    headers,
				BufferSize: app.Config.Feed.BufferSize,
				Logger:     app.Logger,
			})
			// Order updates ride the same socket but only flow with a
			// session, so the order-feed flag follows authentication.
			source.OnConnect(func() {
				app.Terminal.OnFeedConnected(ctx)
				if authed {
					app.Terminal.OnOrderFeedConnected()
				}
			})
			source.OnDisconnect(func(err error) {
				app.Logger.Warn().Err(err).Msg("feed disconnected")
				app.Terminal.OnFeedDisconnected()
				app.Terminal.OnOrderFeedDisconnected()
			})

			if err := source.Connect(ctx); err != nil {
				return err
			}
			defer source.Close()

			app.Logger.Info().Str("url", app.Config.Feed.URL).Str("mode", app.Config.Trading.Mode).Msg("terminal running")
			app.Terminal.Ingest(ctx, source.Messages())
			return nil
		},
	}
}
