// Package main is the entry point for the stationboard CLI.
//
// StationBoard can be run either as a library (SDK) or as a standalone binary
// configured by YAML or environment variables. This CLI provides the
// standalone binary approach.
//
// Usage:
//
//	stationboard serve -c config.yaml                  # Start the dashboard
//	stationboard serve                                 # Configure from STATIONBOARD_* env
//	stationboard validate -c config.yaml               # Validate configuration
//	stationboard inject --station 1 --status ACTIVE    # Send a test event
//	stationboard version                               # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// logLevel backs the persistent --log-level flag.
var logLevel string

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "stationboard",
	Short: "A realtime station status dashboard",
	Long: `StationBoard keeps a live ACTIVE/INACTIVE view of a fixed set of stations.

It subscribes to a realtime event channel over WebSocket, normalizes the
incoming events and serves the current status in a web UI with
Server-Sent Events for live updates.

Quick start:
  1. export STATIONBOARD_SOCKET_URL=wss://.../event/realtime
  2. export STATIONBOARD_HOST=... STATIONBOARD_TOKEN=...
  3. Run: stationboard serve
  4. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  realtime:
    url: wss://example.com/event/realtime
    host: example.com
    token: ${STATIONBOARD_TOKEN}
  stations:
    - id: "1"
      name: Main Station`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger on stderr at the --log-level level.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this stationboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "stationboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
