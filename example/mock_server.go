package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/stationboard/internal/realtime"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{realtime.EventProtocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

// StartMockEventServer runs a mock realtime endpoint on addr at /event/realtime.
// Every subscriber receives a random station status every 2-6 seconds,
// rotating through the three envelope shapes.
// Call this in a goroutine before starting StationBoard.
func StartMockEventServer(addr string, stationIDs []string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/event/realtime", func(w http.ResponseWriter, r *http.Request) {
		protocols := websocket.Subprotocols(r)
		if !slices.Contains(protocols, realtime.EventProtocol) {
			http.Error(w, "missing event protocol", http.StatusBadRequest)
			return
		}
		if !hasValidAuth(protocols) {
			http.Error(w, "missing authorization", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		var sub realtime.SubscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			slog.Error("failed to read subscribe frame", "error", err)
			return
		}
		slog.Info("client subscribed", "channel", sub.Channel, "id", sub.ID)

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe_success","id":"`+sub.ID+`"}`)); err != nil {
			return
		}

		// drain client frames so close is noticed
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for n := 0; ; n++ {
			select {
			case <-gone:
				slog.Info("client disconnected")
				return
			case <-time.After(time.Duration(2+rand.Intn(5)) * time.Second):
			}

			id := stationIDs[rand.Intn(len(stationIDs))]
			status := realtime.StatusInactive
			if rand.Intn(2) == 0 {
				status = realtime.StatusActive
			}

			frame, err := envelope(n%3, realtime.Event{StationID: id, Status: status})
			if err != nil {
				slog.Error("failed to encode event", "error", err)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			slog.Info("event sent", "station", id, "status", status, "shape", n%3)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func hasValidAuth(protocols []string) bool {
	for _, p := range protocols {
		if auth, err := realtime.DecodeAuthSubprotocol(p); err == nil && auth.Authorization != "" {
			return true
		}
	}
	return false
}

// envelope wraps ev in one of the accepted frame shapes: flat, nested
// object, or nested JSON string.
func envelope(shape int, ev realtime.Event) ([]byte, error) {
	inner, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	switch shape {
	case 0:
		return inner, nil
	case 1:
		return []byte(`{"event":` + string(inner) + `}`), nil
	case 2:
		return json.Marshal(map[string]string{"event": string(inner)})
	default:
		return nil, fmt.Errorf("unknown shape %d", shape)
	}
}
