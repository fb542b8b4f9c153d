package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List an account's positions",
	RunE:  runPositions,
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List an account's orders, newest first",
	RunE:  runOrders,
}

var (
	posAccount string
	posAll     bool
	ordLimit   int
	ordCSV     bool
)

func init() {
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(ordersCmd)

	positionsCmd.Flags().StringVarP(&posAccount, "account", "a", "", "account number (default account.number)")
	positionsCmd.Flags().BoolVar(&posAll, "all", false, "include closed positions")
	ordersCmd.Flags().StringVarP(&posAccount, "account", "a", "", "account number (default account.number)")
	ordersCmd.Flags().IntVarP(&ordLimit, "limit", "l", 20, "maximum orders to show (0 for all)")
	ordersCmd.Flags().BoolVar(&ordCSV, "csv", false, "write the order journal as CSV, oldest first")
}

func runPositions(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		number := a.accountOr(posAccount)
		var (
			positions []ledger.Position
			err       error
		)
		if posAll {
			positions, err = a.engine.Positions(ctx, number)
		} else {
			positions, err = a.engine.OpenPositions(ctx, number)
		}
		if err != nil {
			return err
		}
		if len(positions) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No positions for %s\n", number)
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tSTATUS\tQTY\tAVG COST\tMARKET\tUNREALIZED\tREALIZED")
		for _, p := range positions {
			market := "-"
			if p.MarketPrice.Valid {
				market = p.MarketPrice.Decimal.StringFixed(2)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				p.Symbol, p.Status, p.Quantity, p.AverageCost.StringFixed(2), market,
				p.UnrealizedPnL.StringFixed(2), p.RealizedPnL.StringFixed(2))
		}
		return tw.Flush()
	})
}

func runOrders(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		number := a.accountOr(posAccount)
		orders, err := a.engine.Orders(ctx, number, ordLimit)
		if err != nil {
			return err
		}
		if ordCSV {
			return journal.WriteOrders(cmd.OutOrStdout(), orders)
		}
		if len(orders) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No orders for %s\n", number)
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tSIDE\tSYMBOL\tQTY\tPRICE\tSTATUS\tID")
		for _, o := range orders {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				o.CreatedAt.Format("2006-01-02 15:04:05"), o.Side, o.Symbol,
				o.ExecutedQuantity, o.Price.StringFixed(2), o.Status, o.ID)
		}
		return tw.Flush()
	})
}
