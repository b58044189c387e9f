package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/stationboard"
)

func main() {
	stations := stationboard.DefaultStations()
	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = s.ID
	}

	// start mock event channel (see mock_server.go)
	go StartMockEventServer(":9999", ids)
	time.Sleep(100 * time.Millisecond)

	sb, err := stationboard.New(
		stationboard.WithStations(stations...),
		stationboard.WithSocketURL("ws://localhost:9999/event/realtime"),
		stationboard.WithAuth("localhost:9999", "demo-token"),
		stationboard.WithPort(8080),
		stationboard.WithStatusCallback(func(ev stationboard.StatusEvent) {
			slog.Info("station changed", "station", ev.StationID, "status", ev.Status, "source", ev.Source)
		}),
		stationboard.WithStateCallback(func(from, to stationboard.ConnectionState) {
			slog.Info("connection", "from", from, "to", to)
		}),
	)
	if err != nil {
		slog.Error("failed to create stationboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   StationBoard Demo                                   ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Stations:                                           ║")
	fmt.Println("  ║   • 5 stock stations, all INACTIVE at start           ║")
	fmt.Println("  ║   • mock channel flips one every 2-6 seconds          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sb.Start(ctx); err != nil {
		slog.Error("stationboard error", "error", err)
		os.Exit(1)
	}
}
