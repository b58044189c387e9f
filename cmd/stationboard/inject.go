package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/stationboard"
)

const injectTimeout = 5 * time.Second

// injectCmd sends a synthetic status event to a running dashboard.
var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Send a test status event to a running dashboard",
	Long: `Send a synthetic status event to a running StationBoard.

The event is posted to the dashboard's /api/inject endpoint and goes
through the same normalization and store path as a live event.

Example:
  stationboard inject --station 1 --status ACTIVE
  stationboard inject --addr http://board:8080 --station 3 --status INACTIVE`,
	RunE: runInject,
}

func init() {
	rootCmd.AddCommand(injectCmd)

	injectCmd.Flags().String("addr", "http://localhost:8080", "dashboard base URL")
	injectCmd.Flags().String("station", "", "station id (required)")
	injectCmd.Flags().String("status", "", "ACTIVE or INACTIVE (required)")
	_ = injectCmd.MarkFlagRequired("station")
	_ = injectCmd.MarkFlagRequired("status")
}

func runInject(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	station, _ := cmd.Flags().GetString("station")
	statusFlag, _ := cmd.Flags().GetString("status")

	status, err := stationboard.ParseStatus(strings.ToUpper(strings.TrimSpace(statusFlag)))
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"stationId": station,
		"status":    status.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), injectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(addr, "/")+"/api/inject", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("inject failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inject rejected: %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Injected %s -> %s\n", station, status)
	return nil
}
