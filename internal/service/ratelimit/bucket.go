package ratelimit

import (
	"sync"
	"time"

	"RateGate/internal/domain/models"
	"RateGate/pkg/clock"
)

// Bucket is the token state for one key. All access goes through its mutex,
// so consumption for a key is linearizable.
//
// Tokens are kept as integer units of token x refill-period nanoseconds: one
// token is RefillPeriod units and each elapsed nanosecond adds RefillTokens
// units. Refill is exact however often it runs.
type Bucket struct {
	cfg   models.BucketConfig
	clock clock.Clock
	unit  int64 // units per token
	max   int64 // Capacity * unit

	mu    sync.Mutex
	units int64
	last  time.Time
}

// Probe describes the result of one consumption attempt.
type Probe struct {
	Consumed   bool
	Remaining  int64
	RetryAfter time.Duration
}

func newBucket(cfg models.BucketConfig, clk clock.Clock) *Bucket {
	unit := int64(cfg.RefillPeriod)
	return &Bucket{
		cfg:   cfg,
		clock: clk,
		unit:  unit,
		max:   cfg.Capacity * unit,
		units: cfg.Capacity * unit,
		last:  clk.Now(),
	}
}

// Config returns the configuration the bucket was built with.
func (b *Bucket) Config() models.BucketConfig { return b.cfg }

// Available returns the current token count after applying any pending refill.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.clock.Now())
	return float64(b.units/b.unit) + float64(b.units%b.unit)/float64(b.unit)
}

// TryConsume removes tokens if enough are available and reports whether it did.
func (b *Bucket) TryConsume(tokens int64) bool {
	return b.TryConsumeAndProbe(tokens).Consumed
}

// TryConsumeAndProbe is TryConsume that also reports remaining tokens and,
// on failure, how long until the request could succeed. A request larger than
// capacity can never succeed and reports a zero RetryAfter.
func (b *Bucket) TryConsumeAndProbe(tokens int64) Probe {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.refill(now)

	probe := Probe{Remaining: b.units / b.unit}
	if tokens <= 0 || tokens > b.cfg.Capacity {
		return probe
	}
	want := tokens * b.unit
	if b.units >= want {
		b.units -= want
		return Probe{Consumed: true, Remaining: b.units / b.unit}
	}
	probe.RetryAfter = b.waitFor(want-b.units, now)
	return probe
}

// refill must be called with mu held.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	rate := b.cfg.RefillTokens

	switch b.cfg.Mode() {
	case models.RefillIntervally:
		periods := int64(elapsed / b.cfg.RefillPeriod)
		if periods == 0 {
			return
		}
		// Boundaries stay anchored to bucket creation.
		b.last = b.last.Add(time.Duration(periods) * b.cfg.RefillPeriod)
		if periods >= ceilDiv(b.max-b.units, rate*b.unit) {
			b.units = b.max
			return
		}
		b.units += periods * rate * b.unit
	default:
		b.last = now
		// Compared before multiplying so a long idle gap cannot overflow.
		if int64(elapsed) >= ceilDiv(b.max-b.units, rate) {
			b.units = b.max
			return
		}
		b.units += int64(elapsed) * rate
	}
}

// waitFor returns how long until deficit more units are available.
func (b *Bucket) waitFor(deficit int64, now time.Time) time.Duration {
	rate := b.cfg.RefillTokens
	switch b.cfg.Mode() {
	case models.RefillIntervally:
		periods := ceilDiv(deficit, rate*b.unit)
		next := b.last.Add(time.Duration(periods) * b.cfg.RefillPeriod)
		if d := next.Sub(now); d > 0 {
			return d
		}
		return 0
	default:
		return time.Duration(ceilDiv(deficit, rate))
	}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
