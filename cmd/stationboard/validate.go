package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/stationboard/internal/realtime"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a StationBoard configuration without starting the server.

This command parses the YAML, expands environment variables, applies
STATIONBOARD_* overrides and validates all fields. Without --config the
environment alone is validated. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  stationboard validate -c config.yaml
  stationboard validate --config /etc/stationboard/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (optional, defaults to environment only)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	reconnect := "disabled"
	if cfg.Realtime.Reconnect.IsEnabled() {
		reconnect = "enabled"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  URL:       %s\n", cfg.Realtime.URL)
	fmt.Fprintf(out, "  Host:      %s\n", cfg.Realtime.Host)
	fmt.Fprintf(out, "  Token:     %s\n", realtime.Redact(cfg.Realtime.Token))
	fmt.Fprintf(out, "  Channel:   %s\n", cfg.Realtime.Channel)
	fmt.Fprintf(out, "  Reconnect: %s\n", reconnect)
	fmt.Fprintf(out, "  Stations:  %d\n", len(cfg.Stations))

	if exp, ok := realtime.TokenExpiry(cfg.Realtime.Token); ok {
		fmt.Fprintf(out, "  Token exp: %s\n", exp.UTC().Format("2006-01-02T15:04:05Z"))
	}

	return nil
}
