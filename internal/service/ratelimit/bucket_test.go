package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"RateGate/internal/domain/models"
	"RateGate/pkg/clock"
)

var epoch = time.Unix(1_700_000_000, 0)

func TestBucketStartsFullAndConserves(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute}, clk)

	if got := b.Available(); got != 5 {
		t.Fatalf("new bucket should be full, got %v", got)
	}
	for i := 0; i < 5; i++ {
		if !b.TryConsume(1) {
			t.Fatalf("consume %d failed", i+1)
		}
	}
	if b.TryConsume(1) {
		t.Fatalf("empty bucket must refuse")
	}
	if got := b.Available(); got != 0 {
		t.Fatalf("failed consume must not change state, got %v", got)
	}
}

func TestBucketGreedyRefillIsProportionalAndCapped(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute}, clk)
	for b.TryConsume(1) {
	}

	clk.Advance(24 * time.Second)
	if got := b.Available(); got != 2 {
		t.Fatalf("after 24s expected 2 tokens, got %v", got)
	}

	prev := b.Available()
	for i := 0; i < 10; i++ {
		clk.Advance(7 * time.Second)
		got := b.Available()
		if got < prev {
			t.Fatalf("refill must be monotonic: %v < %v", got, prev)
		}
		if got > 5 {
			t.Fatalf("tokens exceed capacity: %v", got)
		}
		prev = got
	}
	if prev != 5 {
		t.Fatalf("expected bucket to be full again, got %v", prev)
	}
}

func TestBucketIntervallyRefillsInWholePeriods(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{
		Capacity: 3, RefillTokens: 3, RefillPeriod: time.Minute, RefillMode: models.RefillIntervally,
	}, clk)
	for b.TryConsume(1) {
	}

	clk.Advance(59 * time.Second)
	if b.TryConsume(1) {
		t.Fatalf("no tokens before the period boundary")
	}
	p := b.TryConsumeAndProbe(1)
	if p.RetryAfter != time.Second {
		t.Fatalf("expected retry after 1s, got %s", p.RetryAfter)
	}

	clk.Advance(time.Second)
	if got := b.Available(); got != 3 {
		t.Fatalf("expected a full batch at the boundary, got %v", got)
	}
}

func TestBucketProbe(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute}, clk)

	p := b.TryConsumeAndProbe(2)
	if !p.Consumed || p.Remaining != 3 {
		t.Fatalf("unexpected probe %+v", p)
	}
	p = b.TryConsumeAndProbe(4)
	if p.Consumed || p.Remaining != 3 || p.RetryAfter != 12*time.Second {
		t.Fatalf("expected refusal with 12s wait, got %+v", p)
	}
	if p := b.TryConsumeAndProbe(6); p.Consumed || p.RetryAfter != 0 {
		t.Fatalf("request over capacity never succeeds, got %+v", p)
	}
	if p := b.TryConsumeAndProbe(0); p.Consumed {
		t.Fatalf("non-positive request must not consume")
	}
}

func TestBucketConcurrentConsumersNeverOverspend(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{Capacity: 100, RefillTokens: 1, RefillPeriod: time.Hour}, clk)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if b.TryConsume(1) {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if granted != 100 {
		t.Fatalf("expected exactly 100 grants, got %d", granted)
	}
}

func TestBucketFrequentRefillsAddExactlyOnePeriodOfTokens(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute}, clk)
	for b.TryConsume(1) {
	}

	// A throttled client retrying every second refills the bucket 60 times.
	for i := 0; i < 60; i++ {
		clk.Advance(time.Second)
		b.TryConsume(6)
	}
	if got := b.Available(); got != 5 {
		t.Fatalf("after one period of 1s refills expected 5 tokens, got %.17g", got)
	}
	for i := 0; i < 5; i++ {
		if !b.TryConsume(1) {
			t.Fatalf("token %d of 5 unusable after a full period", i+1)
		}
	}
}

func TestBucketOddRatesStayExact(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{Capacity: 7, RefillTokens: 3, RefillPeriod: 7 * time.Second}, clk)
	for b.TryConsume(1) {
	}

	for i := 0; i < 7000; i++ {
		clk.Advance(time.Millisecond)
		_ = b.Available()
	}
	if got := b.Available(); got != 3 {
		t.Fatalf("expected exactly 3 tokens after one period, got %.17g", got)
	}
	if p := b.TryConsumeAndProbe(4); p.Consumed || p.RetryAfter != 7*time.Second/3+1 {
		t.Fatalf("expected refusal with %s wait, got %+v", 7*time.Second/3+1, p)
	}
}

func TestBucketLongIdleGapRefillsToCapacity(t *testing.T) {
	clk := clock.NewManual(epoch)
	b := newBucket(models.BucketConfig{Capacity: 1_000_000, RefillTokens: 1_000_000, RefillPeriod: time.Minute}, clk)
	if !b.TryConsume(1_000_000) {
		t.Fatalf("full bucket should grant its capacity")
	}
	clk.Advance(365 * 24 * time.Hour)
	if got := b.Available(); got != 1_000_000 {
		t.Fatalf("expected a full bucket after a long gap, got %v", got)
	}
}

func TestConfigRejectsSizesThatOverflowBookkeeping(t *testing.T) {
	cfg := models.BucketConfig{Capacity: 1 << 40, RefillTokens: 1, RefillPeriod: time.Hour}
	if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	cfg = models.BucketConfig{Capacity: 1_000_000, RefillTokens: 1_000_000, RefillPeriod: time.Hour}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
