// Package cli provides the command-line interface for the terminal.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"neo-terminal/internal/broker"
	"neo-terminal/internal/config"
	"neo-terminal/internal/store"
	"neo-terminal/internal/terminal"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Broker   broker.Client
	Journal  *store.TradeJournal
	Terminal *terminal.Terminal
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Credentials.Neo.MobileNumber != "" {
		app.Broker = broker.NewNeoClient(broker.NeoConfig{
			BaseURL:           cfg.Credentials.Neo.BaseURL,
			MobileNumber:      cfg.Credentials.Neo.MobileNumber,
			Password:          cfg.Credentials.Neo.Password,
			MPIN:              cfg.Credentials.Neo.MPIN,
			TOTPSecret:        cfg.Credentials.Neo.TOTPSecret,
			RequestsPerSecond: 3,
		}, logger)
		logger.Debug().Msg("neo broker client initialized")
	}

	if journal, err := store.OpenJournal(config.DefaultConfigDir() + "/journal.db"); err != nil {
		logger.Warn().Err(err).Msg("trade journal unavailable")
	} else {
		app.Journal = journal
	}

	var fillJournal terminal.FillJournal
	if app.Journal != nil {
		fillJournal = app.Journal
	}
	app.Terminal = terminal.New(ctx, cfg, app.Broker, fillJournal, logger)

	rootCmd := &cobra.Command{
		Use:          "neo-terminal",
		Short:        "Real-time market state and paper trading terminal",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCmd(app),
		newQuoteCmd(app),
		newDepthCmd(app),
		newSubscribeCmd(app),
		newUnsubscribeCmd(app),
		newSubscriptionsCmd(app),
		newOrderCmd(app),
		newOrdersCmd(app),
		newTradesCmd(app),
		newPositionsCmd(app),
		newHoldingsCmd(app),
		newDashboardCmd(app),
		newFundsCmd(app),
		newResetCmd(app),
	)
	return rootCmd
}
