package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"RateGate/internal/service/ratelimit"
	"RateGate/pkg/config"
	xhttp "RateGate/pkg/http"
	pkgkafka "RateGate/pkg/kafka"
	applogger "RateGate/pkg/logger"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	httpServer  *xhttp.Server
	invalidator *ratelimit.CacheInvalidator
	consumer    *pkgkafka.Consumer
	closers     []closer
}

// New creates a new App instance with all dependencies. consumer may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	invalidator *ratelimit.CacheInvalidator,
	consumer *pkgkafka.Consumer,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:         cfg,
		log:         l,
		httpServer:  httpServer,
		invalidator: invalidator,
		consumer:    consumer,
	}
}

// OnClose registers a resource released after everything else stopped.
// Closers run in reverse registration order.
func (a *App) OnClose(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, closer{name: name, fn: fn})
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done or the
// HTTP listener fails.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.invalidator.Start(bg); err != nil {
		a.close()
		return fmt.Errorf("start cache invalidator: %w", err)
	}

	if a.consumer != nil {
		if err := a.consumer.Start(bg); err != nil {
			a.invalidator.Stop()
			a.close()
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.stopBackground(context.Background())
		a.close()
		return err
	}

	a.log.Info("rategate started",
		applogger.String("environment", a.cfg.Environment),
		applogger.String("policy", a.cfg.RateLimit.Policy),
		applogger.String("key_strategy", a.cfg.RateLimit.Key.Strategy),
		applogger.Bool("events", a.consumer != nil),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		runErr = err
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops intake first, then background work, then releases clients.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")

	ctx := context.Background()
	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.stopBackground(ctx)
	a.close()

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) stopBackground(ctx context.Context) {
	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}
	a.invalidator.Stop()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.closers = nil
}
