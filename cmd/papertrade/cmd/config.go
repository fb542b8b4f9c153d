package cmd

import (
	"fmt"

	"github.com/rustyeddy/papertrade/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage papertrade configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

The format follows the extension: .yaml/.yml, .json or .toml.

Examples:
  papertrade config init -o papertrade.yaml
  papertrade config validate -f papertrade.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "papertrade.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  papertrade --config %s account open\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Store:   %s %s\n", cfg.Store.Driver, cfg.Store.DSN)
	fmt.Fprintf(out, "  Account: %s (%s cash)\n", cfg.Account.Number, cfg.Account.InitialCash)
	if cfg.Redis.Addr != "" {
		fmt.Fprintf(out, "  Redis:   %s (ttl %s)\n", cfg.Redis.Addr, cfg.Redis.TTL.Duration)
	}
	return nil
}
