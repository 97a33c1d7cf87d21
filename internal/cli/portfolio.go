package cli

import (
	"github.com/spf13/cobra"

	"neo-terminal/pkg/utils"
)

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show positions with realized and unrealized P&L",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports := app.Terminal.Positions()
			if len(reports) == 0 {
				cmd.Println("no positions")
				return nil
			}
			var total float64
			for _, r := range reports {
				cmd.Printf("%-12s %-5s net=%d avg=%.2f ltp=%.2f realized=%s unrealized=%s total=%s\n",
					r.Position.TradingSymbol, r.Position.Product,
					r.PnL.NetQty, r.PnL.AvgPrice, r.PnL.LTP,
					utils.FormatPnL(r.PnL.RealizedPnL),
					utils.FormatPnL(r.PnL.UnrealizedPnL),
					utils.FormatPnL(r.PnL.TotalPnL))
				total += r.PnL.TotalPnL
			}
			cmd.Printf("total P&L: %s\n", utils.FormatPnL(total))
			return nil
		},
	}
}

func newHoldingsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "holdings",
		Short: "Show delivery holdings with P&L",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports := app.Terminal.Holdings()
			if len(reports) == 0 {
				cmd.Println("no holdings")
				return nil
			}
			for _, r := range reports {
				cmd.Printf("%-12s qty=%d avg=%.2f ltp=%.2f value=%s pnl=%s (%s)\n",
					r.Holding.TradingSymbol, r.PnL.Quantity, r.PnL.AveragePrice, r.PnL.CurrentPrice,
					utils.FormatIndianCurrency(r.PnL.CurrentValue),
					utils.FormatPnL(r.PnL.PnL),
					utils.FormatPercent(r.PnL.PnLPercent))
			}
			return nil
		},
	}
}

func newDashboardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show an account summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := app.Terminal.DashboardSummary()
			cmd.Printf("mode:          %s\n", d.Mode)
			cmd.Printf("feed:          %s\n", feedState(d.FeedConnected))
			cmd.Printf("subscriptions: %d\n", d.Subscriptions)
			cmd.Printf("orders:        %d (%d open)\n", d.TotalOrders, d.OpenOrders)
			cmd.Printf("positions:     %d\n", d.Positions)
			cmd.Printf("realized:      %s\n", utils.FormatPnL(d.RealizedPnL))
			cmd.Printf("unrealized:    %s\n", utils.FormatPnL(d.UnrealizedPnL))
			cmd.Printf("total P&L:     %s\n", utils.FormatPnL(d.TotalPnL))
			cmd.Printf("margin avail:  %s\n", utils.FormatIndianCurrency(d.AvailableMargin))
			return nil
		},
	}
}

func newFundsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "funds",
		Short: "Show the simulated funds snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := app.Terminal.Funds()
			cmd.Printf("available cash:   %s\n", utils.FormatIndianCurrency(f.AvailableCash))
			cmd.Printf("used margin:      %s\n", utils.FormatIndianCurrency(f.UsedMargin))
			cmd.Printf("available margin: %s\n", utils.FormatIndianCurrency(f.AvailableMargin))
			cmd.Printf("collateral:       %s\n", utils.FormatIndianCurrency(f.TotalCollateral))
			return nil
		},
	}
}

func feedState(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}
