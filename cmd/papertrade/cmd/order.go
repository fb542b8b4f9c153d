package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/money"
	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place paper buy and sell orders",
	Long: `Fill a market order immediately at the given price.

Examples:
  papertrade order buy --symbol AAPL --qty 10 --price 187.25
  papertrade order sell --account PAPER-001 --symbol AAPL --qty 5 --price 190`,
}

var orderBuyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Buy shares",
	RunE:  func(cmd *cobra.Command, args []string) error { return runOrder(cmd, ledger.Buy) },
}

var orderSellCmd = &cobra.Command{
	Use:   "sell",
	Short: "Sell shares from an open long position",
	RunE:  func(cmd *cobra.Command, args []string) error { return runOrder(cmd, ledger.Sell) },
}

var (
	ordAccount string
	ordSymbol  string
	ordQty     int64
	ordPrice   string
	ordNotes   string
)

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(orderBuyCmd)
	orderCmd.AddCommand(orderSellCmd)

	for _, c := range []*cobra.Command{orderBuyCmd, orderSellCmd} {
		c.Flags().StringVarP(&ordAccount, "account", "a", "", "account number (default account.number)")
		c.Flags().StringVarP(&ordSymbol, "symbol", "s", "", "ticker symbol (required)")
		c.Flags().Int64VarP(&ordQty, "qty", "q", 0, "share quantity (required)")
		c.Flags().StringVarP(&ordPrice, "price", "p", "", "execution price (required)")
		c.Flags().StringVar(&ordNotes, "notes", "", "free-form order notes")
		c.MarkFlagRequired("symbol")
		c.MarkFlagRequired("qty")
		c.MarkFlagRequired("price")
	}
}

func runOrder(cmd *cobra.Command, side ledger.OrderSide) error {
	price, err := money.Parse(ordPrice)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		req := ledger.OrderRequest{
			Account:  a.accountOr(ordAccount),
			Symbol:   ordSymbol,
			Quantity: ordQty,
			Price:    price,
			Type:     ledger.MarketOrder,
			Notes:    ordNotes,
		}
		var ex ledger.Execution
		if side == ledger.Buy {
			ex, err = a.engine.PlaceBuy(ctx, req)
		} else {
			ex, err = a.engine.PlaceSell(ctx, req)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		o := ex.Order
		fmt.Fprintf(out, "✓ Filled %s %d %s @ %s (order %s)\n",
			o.Side, o.ExecutedQuantity, o.Symbol, o.Price.StringFixed(2), o.ID)
		fmt.Fprintf(out, "  Position:     %d @ %s avg (%s)\n",
			ex.Position.Quantity, ex.Position.AverageCost.StringFixed(2), ex.Position.Status)
		if side == ledger.Sell {
			fmt.Fprintf(out, "  Position P/L: %s realized\n", ex.Position.RealizedPnL.StringFixed(2))
		}
		printAccount(out, ex.Account)
		return nil
	})
}
