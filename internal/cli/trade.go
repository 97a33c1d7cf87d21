package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"neo-terminal/internal/models"
	"neo-terminal/internal/paper"
	"neo-terminal/pkg/utils"
)

func newOrderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place, modify or cancel orders",
	}
	cmd.AddCommand(newOrderPlaceCmd(app), newOrderModifyCmd(app), newOrderCancelCmd(app), newOrderMarginCmd(app))
	return cmd
}

func newOrderPlaceCmd(app *App) *cobra.Command {
	var (
		segment   string
		token     string
		side      string
		orderType string
		product   string
		quantity  int
		price     float64
		trigger   float64
		validity  string
		tag       string
	)
	cmd := &cobra.Command{
		Use:   "place <symbol>",
		Short: "Place an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := app.Terminal.PlaceOrder(cmd.Context(), paper.OrderParams{
				TradingSymbol:   args[0],
				ExchangeSegment: segment,
				Token:           token,
				TransactionType: models.TransactionType(strings.ToUpper(side)),
				OrderType:       models.OrderType(strings.ToUpper(orderType)),
				Product:         models.ProductType(strings.ToUpper(product)),
				Quantity:        quantity,
				Price:           price,
				TriggerPrice:    trigger,
				Validity:        validity,
				Tag:             tag,
			})
			if err != nil {
				return err
			}
			cmd.Printf("order %s %s\n", order.ID, order.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&segment, "segment", "nse_cm", "exchange segment")
	cmd.Flags().StringVar(&token, "token", "", "instrument token (for market fills at LTP)")
	cmd.Flags().StringVar(&side, "side", "B", "B or S")
	cmd.Flags().StringVar(&orderType, "type", "MKT", "order type (L, MKT, SL, SL-M)")
	cmd.Flags().StringVar(&product, "product", "MIS", "product type (MIS, CNC, NRML)")
	cmd.Flags().IntVar(&quantity, "qty", 0, "order quantity")
	cmd.Flags().Float64Var(&price, "price", 0, "limit price (0 for market)")
	cmd.Flags().Float64Var(&trigger, "trigger", 0, "trigger price")
	cmd.Flags().StringVar(&validity, "validity", "DAY", "order validity")
	cmd.Flags().StringVar(&tag, "tag", "", "free-form order tag")
	return cmd
}

func newOrderModifyCmd(app *App) *cobra.Command {
	var (
		quantity int
		price    float64
		trigger  float64
	)
	cmd := &cobra.Command{
		Use:   "modify <order-id>",
		Short: "Modify an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := paper.ModifyParams{}
			if cmd.Flags().Changed("qty") {
				p.Quantity = &quantity
			}
			if cmd.Flags().Changed("price") {
				p.Price = &price
			}
			if cmd.Flags().Changed("trigger") {
				p.TriggerPrice = &trigger
			}
			order, err := app.Terminal.ModifyOrder(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			cmd.Printf("order %s %s\n", order.ID, order.Status)
			return nil
		},
	}
	cmd.Flags().IntVar(&quantity, "qty", 0, "new quantity")
	cmd.Flags().Float64Var(&price, "price", 0, "new limit price")
	cmd.Flags().Float64Var(&trigger, "trigger", 0, "new trigger price")
	return cmd
}

func newOrderCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := app.Terminal.CancelOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("order %s %s\n", order.ID, order.Status)
			return nil
		},
	}
}

func newOrderMarginCmd(app *App) *cobra.Command {
	var (
		product  string
		quantity int
		price    float64
	)
	cmd := &cobra.Command{
		Use:   "margin <symbol>",
		Short: "Estimate the margin blocked by an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			margin := app.Terminal.MarginRequired(paper.OrderParams{
				TradingSymbol: args[0],
				Product:       models.ProductType(strings.ToUpper(product)),
				Quantity:      quantity,
				Price:         price,
			})
			cmd.Printf("margin required: %s\n", utils.FormatIndianCurrency(margin))
			return nil
		},
	}
	cmd.Flags().StringVar(&product, "product", "MIS", "product type")
	cmd.Flags().IntVar(&quantity, "qty", 0, "order quantity")
	cmd.Flags().Float64Var(&price, "price", 0, "order price")
	return cmd
}

func newOrdersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List paper orders, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			orders := app.Terminal.OrderBook()
			if len(orders) == 0 {
				cmd.Println("no orders")
				return nil
			}
			for _, o := range orders {
				line := fmt.Sprintf("%-24s %-12s %s %s qty=%d price=%.2f %s",
					o.ID, o.TradingSymbol, o.TransactionType, o.OrderType, o.Quantity, o.Price, o.Status)
				if o.RejectionReason != "" {
					line += " (" + o.RejectionReason + ")"
				}
				cmd.Println(line)
			}
			return nil
		},
	}
}

func newTradesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "trades",
		Short: "List simulated executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fills := app.Terminal.TradeHistory()
			if len(fills) == 0 {
				cmd.Println("no trades")
				return nil
			}
			for _, f := range fills {
				cmd.Printf("%s %-24s %-12s %s qty=%d price=%.2f\n",
					f.FilledAt.Format("15:04:05"), f.OrderID, f.TradingSymbol, f.TransactionType, f.Quantity, f.Price)
			}
			return nil
		},
	}
}

func newResetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear all paper orders, trades and positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Terminal.ClearPaperData()
			cmd.Println("paper trading state cleared")
			return nil
		},
	}
}
