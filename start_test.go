package stationboard

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestStart_BlocksUntilContextCancelled verifies that Start blocks until the
// provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	es := newEventServer(t)

	var logBuf bytes.Buffer
	sb, err := New(
		WithSocketURL(es.wsURL()),
		WithAuth(testHost, testToken),
		WithPort(freePort(t)),
		WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		close(started)
		done <- sb.Start(ctx)
	}()

	<-started
	time.Sleep(50 * time.Millisecond)

	// verify Start is still blocking
	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	if !strings.Contains(logBuf.String(), "dashboard available") {
		t.Errorf("dashboard URL should be logged once serving, got: %s", logBuf.String())
	}
}

// TestStart_AlreadyCancelledContext verifies that Start returns immediately
// and closes the board when the context is already cancelled.
func TestStart_AlreadyCancelledContext(t *testing.T) {
	var logBuf bytes.Buffer
	sb := newBoard(t, WithPort(freePort(t)), WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- sb.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Start() did not return for cancelled context")
	}

	if sb.State() != StateClosed {
		t.Errorf("State() = %v, want %v", sb.State(), StateClosed)
	}
	if strings.Contains(logBuf.String(), "dashboard available") {
		t.Errorf("dashboard URL logged although nothing was served: %s", logBuf.String())
	}
}

// TestStart_PortInUse verifies that a bind failure is returned and the
// board is torn down.
func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	es := newEventServer(t)
	var logBuf bytes.Buffer
	sb, err := New(
		WithSocketURL(es.wsURL()),
		WithAuth(testHost, testToken),
		WithPort(ln.Addr().(*net.TCPAddr).Port),
		WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = sb.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v, want HTTP server error", err)
	}
	if strings.Contains(logBuf.String(), "dashboard available") {
		t.Errorf("dashboard URL logged although the bind failed: %s", logBuf.String())
	}
	if sb.State() != StateClosed {
		t.Errorf("State() = %v, want %v", sb.State(), StateClosed)
	}
}

// TestStart_Twice verifies that a second Start is rejected while the first
// is running.
func TestStart_Twice(t *testing.T) {
	es := newEventServer(t)
	sb, err := New(
		WithSocketURL(es.wsURL()),
		WithAuth(testHost, testToken),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sb.Start(ctx)
	}()

	waitFor(t, "first start", func() bool { return sb.State() != StateIdle })

	if err := sb.Start(ctx); err == nil {
		t.Error("second Start() should return error")
	}

	cancel()
	wg.Wait()
}

// TestStart_CloseDuringStart verifies that Close from another goroutine
// tears down the connection while Start keeps serving until ctx ends.
func TestStart_CloseDuringStart(t *testing.T) {
	es := newEventServer(t)
	sb, err := New(
		WithSocketURL(es.wsURL()),
		WithAuth(testHost, testToken),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sb.Start(ctx) }()

	waitFor(t, "subscription", func() bool { return sb.State() == StateSubscribed })

	if err := sb.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if sb.State() != StateClosed {
		t.Errorf("State() after Close = %v, want %v", sb.State(), StateClosed)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}
