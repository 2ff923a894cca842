package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"RateGate/internal/service/ratelimit"
	"RateGate/pkg/config"
	xhttp "RateGate/pkg/http"
	applogger "RateGate/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

type countingFlusher struct{ n atomic.Int64 }

func (f *countingFlusher) Flush() { f.n.Add(1) }

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func TestRunContextStopsAndClosesInReverseOrder(t *testing.T) {
	cfg := testConfig(t)
	port := freePort(t)
	reg := prometheus.NewRegistry()
	srv := xhttp.NewServer(nil,
		xhttp.WithMetrics(reg, reg),
		xhttp.WithHost("127.0.0.1"),
		xhttp.WithPort(port),
		xhttp.WithTimeouts(time.Second, time.Second, time.Second),
	)
	flusher := &countingFlusher{}
	inv := ratelimit.NewCacheInvalidator(flusher, 5*time.Millisecond, ratelimit.WithInitialDelay(0))

	app := New(cfg, applogger.Nop(), srv, inv, nil)
	var order []string
	app.OnClose("first", func() error { order = append(order, "first"); return nil })
	app.OnClose("second", func() error { order = append(order, "second"); return errors.New("ignored") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never listened: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	for flusher.n.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("invalidator never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunContext: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("RunContext did not return")
	}

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("close order = %v", order)
	}
	after := flusher.n.Load()
	time.Sleep(30 * time.Millisecond)
	if flusher.n.Load() != after {
		t.Fatalf("invalidator still running after shutdown")
	}
}

func TestRunContextFailsWithoutInvalidatorTarget(t *testing.T) {
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()
	srv := xhttp.NewServer(nil, xhttp.WithMetrics(reg, reg), xhttp.WithPort(freePort(t)))
	inv := ratelimit.NewCacheInvalidator(nil, time.Minute)

	app := New(cfg, nil, srv, inv, nil)
	closed := false
	app.OnClose("repo", func() error { closed = true; return nil })

	if err := app.RunContext(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if !closed {
		t.Fatalf("resources not released on start failure")
	}
}
