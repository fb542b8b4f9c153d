package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/money"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Open, inspect or deactivate paper accounts",
	Long: `Manage paper trading accounts.

Subcommands:
  open       - Create an account funded with initial cash
  show       - Print balance, buying power and realized P/L
  deactivate - Mark an account inactive (accounts are never deleted)

Examples:
  papertrade account open --number PAPER-001 --cash 100000
  papertrade account show PAPER-001`,
}

var accountOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new paper account",
	RunE:  runAccountOpen,
}

var accountShowCmd = &cobra.Command{
	Use:   "show [number]",
	Short: "Show an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAccountShow,
}

var accountDeactivateCmd = &cobra.Command{
	Use:   "deactivate <number>",
	Short: "Deactivate an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountDeactivate,
}

var (
	acctNumber      string
	acctName        string
	acctDescription string
	acctCash        string
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountOpenCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountDeactivateCmd)

	accountOpenCmd.Flags().StringVarP(&acctNumber, "number", "n", "", "account number (default account.number)")
	accountOpenCmd.Flags().StringVar(&acctName, "name", "", "display name (default account.name)")
	accountOpenCmd.Flags().StringVar(&acctDescription, "description", "", "free-form description")
	accountOpenCmd.Flags().StringVarP(&acctCash, "cash", "c", "", "initial cash (default account.initial_cash)")
}

func runAccountOpen(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		name := acctName
		if name == "" {
			name = a.cfg.Account.Name
		}
		cashText := acctCash
		if cashText == "" {
			cashText = a.cfg.Account.InitialCash
		}
		cash, err := money.Parse(cashText)
		if err != nil {
			return fmt.Errorf("cash: %w", err)
		}

		acct, err := a.engine.OpenAccount(ctx, ledger.OpenAccountRequest{
			Number:      a.accountOr(acctNumber),
			Name:        name,
			Description: acctDescription,
			InitialCash: cash,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Opened account %s\n", acct.Number)
		printAccount(out, acct)
		return nil
	})
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		number := ""
		if len(args) > 0 {
			number = args[0]
		}
		acct, err := a.engine.Snapshot(ctx, a.accountOr(number))
		if err != nil {
			return err
		}
		printAccount(cmd.OutOrStdout(), acct)
		return nil
	})
}

func runAccountDeactivate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		acct, err := a.engine.DeactivateAccount(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deactivated account %s\n", acct.Number)
		return nil
	})
}

func printAccount(w io.Writer, a ledger.Account) {
	status := "active"
	if !a.Active {
		status = "inactive"
	}
	fmt.Fprintf(w, "  Account:      %s (%s)\n", a.Number, status)
	if a.Name != "" {
		fmt.Fprintf(w, "  Name:         %s\n", a.Name)
	}
	fmt.Fprintf(w, "  Balance:      %s\n", a.Balance.StringFixed(2))
	fmt.Fprintf(w, "  Buying Power: %s\n", a.BuyingPower.StringFixed(2))
	fmt.Fprintf(w, "  Realized P/L: %s\n", a.RealizedPnL.StringFixed(2))
}
