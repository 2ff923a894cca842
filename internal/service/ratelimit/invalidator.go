package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"RateGate/internal/domain/repository"
	"RateGate/pkg/logger"
	"RateGate/pkg/metrics"
)

// Flusher discards memoized state in one step.
type Flusher interface {
	Flush()
}

// CacheInvalidator flushes a policy cache on a fixed delay until stopped.
// It never touches the bucket store.
type CacheInvalidator struct {
	target       Flusher
	interval     time.Duration
	initialDelay time.Duration
	logger       *logger.Logger
	metrics      repository.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type InvalidatorOption func(*CacheInvalidator)

// WithInitialDelay sets the wait before the first flush.
func WithInitialDelay(d time.Duration) InvalidatorOption {
	return func(c *CacheInvalidator) {
		if d >= 0 {
			c.initialDelay = d
		}
	}
}

// WithInvalidatorLogger sets the logger.
func WithInvalidatorLogger(l *logger.Logger) InvalidatorOption {
	return func(c *CacheInvalidator) { c.logger = l }
}

// WithInvalidatorMetrics sets the metrics recorder.
func WithInvalidatorMetrics(m repository.Metrics) InvalidatorOption {
	return func(c *CacheInvalidator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewCacheInvalidator creates an invalidator that flushes target every interval.
func NewCacheInvalidator(target Flusher, interval time.Duration, opts ...InvalidatorOption) *CacheInvalidator {
	c := &CacheInvalidator{
		target:       target,
		interval:     interval,
		initialDelay: 10 * time.Second,
		metrics:      metrics.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the flush loop. Calling Start on a running invalidator is a no-op.
func (c *CacheInvalidator) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("cache invalidator: no flush target")
	}
	if c.interval <= 0 {
		return fmt.Errorf("cache invalidator: interval must be > 0, got %s", c.interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)

	if c.logger != nil {
		c.logger.Info("cache invalidator started",
			logger.Duration("interval_ms", c.interval),
			logger.Duration("initial_delay_ms", c.initialDelay),
		)
	}
	return nil
}

// Stop cancels the loop and waits for it to exit. Safe to call more than once.
func (c *CacheInvalidator) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *CacheInvalidator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(c.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.flushOnce()
			// Fixed delay: the next wait starts after this flush finished.
			timer.Reset(c.interval)
		}
	}
}

func (c *CacheInvalidator) flushOnce() {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordError("cache_flush")
			if c.logger != nil {
				c.logger.Error("cache flush panicked", logger.Error(fmt.Errorf("%v", r)))
			}
		}
	}()

	c.target.Flush()
	c.metrics.RecordPolicyFlush("scheduled")
	if c.logger != nil {
		c.logger.Info("evict user limit cache")
	}
}
