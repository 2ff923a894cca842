package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"RateGate/internal/domain/models"
	"RateGate/internal/domain/repository"
	"RateGate/pkg/clock"
	"RateGate/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

const (
	PolicyStatic = "static"
	PolicyUser   = "user"
)

// Strategy produces the bucket configuration for a key.
type Strategy interface {
	Name() string
	Config(ctx context.Context, key string) (models.BucketConfig, error)
}

// StaticPolicy hands out the same configuration for every key.
type StaticPolicy struct {
	cfg models.BucketConfig
}

func NewStaticPolicy(cfg models.BucketConfig) *StaticPolicy {
	return &StaticPolicy{cfg: cfg}
}

func (p *StaticPolicy) Name() string { return PolicyStatic }

func (p *StaticPolicy) Config(_ context.Context, _ string) (models.BucketConfig, error) {
	return p.cfg, nil
}

// UserPolicy reads a requests-per-period limit per user from the repository.
type UserPolicy struct {
	repo   repository.UserLimitRepository
	period time.Duration
	mode   models.RefillMode
}

// NewUserPolicy creates a per-user strategy. A non-positive period defaults to one minute.
func NewUserPolicy(repo repository.UserLimitRepository, period time.Duration, mode models.RefillMode) *UserPolicy {
	if period <= 0 {
		period = time.Minute
	}
	return &UserPolicy{repo: repo, period: period, mode: mode}
}

func (p *UserPolicy) Name() string { return PolicyUser }

func (p *UserPolicy) Config(ctx context.Context, key string) (models.BucketConfig, error) {
	ul, err := p.repo.GetUserLimit(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.BucketConfig{}, fmt.Errorf("%w: user %q", ErrUnknownIdentity, key)
		}
		return models.BucketConfig{}, fmt.Errorf("user limit lookup: %w", err)
	}
	if ul == nil {
		return models.BucketConfig{}, fmt.Errorf("%w: user %q", ErrUnknownIdentity, key)
	}
	return models.BucketConfig{
		Capacity:     ul.Limit,
		RefillTokens: ul.Limit,
		RefillPeriod: p.period,
		RefillMode:   p.mode,
	}, nil
}

type cacheEntry struct {
	cfg        models.BucketConfig
	insertedAt time.Time
}

// policyCache is one generation of memoized configs. A flush replaces the
// whole container, so readers see either all old entries or none.
type policyCache struct {
	gen     uint64
	entries sync.Map // string -> cacheEntry
	size    atomic.Int64
}

// Provider memoizes Strategy results per key until the next Flush.
type Provider struct {
	strategy Strategy
	clock    clock.Clock
	metrics  repository.Metrics

	gen   atomic.Uint64
	cache atomic.Pointer[policyCache]
	group singleflight.Group
}

type ProviderOption func(*Provider)

// WithProviderClock sets the clock used to stamp cache entries.
func WithProviderClock(clk clock.Clock) ProviderOption {
	return func(p *Provider) {
		if clk != nil {
			p.clock = clk
		}
	}
}

// WithProviderMetrics sets the metrics recorder.
func WithProviderMetrics(m repository.Metrics) ProviderOption {
	return func(p *Provider) {
		if m != nil {
			p.metrics = m
		}
	}
}

// NewProvider creates a cached provider around strategy.
func NewProvider(strategy Strategy, opts ...ProviderOption) *Provider {
	p := &Provider{
		strategy: strategy,
		clock:    clock.System,
		metrics:  metrics.Noop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache.Store(&policyCache{})
	return p
}

// Name returns the active strategy name.
func (p *Provider) Name() string { return p.strategy.Name() }

// GetConfig returns the memoized config for key, running the strategy on a miss.
// Concurrent misses for one key in one generation share a single lookup, and
// no lock is held while it runs. Failed lookups are not cached.
func (p *Provider) GetConfig(ctx context.Context, key string) (models.BucketConfig, error) {
	c := p.cache.Load()
	if e, ok := c.entries.Load(key); ok {
		p.metrics.RecordPolicyCache(true)
		return e.(cacheEntry).cfg, nil
	}
	p.metrics.RecordPolicyCache(false)

	// Detached so one cancelled caller cannot fail the others sharing the flight.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(strconv.FormatUint(c.gen, 10)+":"+key, func() (interface{}, error) {
		start := time.Now()
		cfg, err := p.strategy.Config(lookupCtx, key)
		p.metrics.RecordLookup(p.strategy.Name(), time.Since(start).Seconds(), err)
		if err != nil {
			return nil, err
		}
		if _, loaded := c.entries.LoadOrStore(key, cacheEntry{cfg: cfg, insertedAt: p.clock.Now()}); !loaded {
			c.size.Add(1)
		}
		return cfg, nil
	})
	if err != nil {
		return models.BucketConfig{}, err
	}
	return v.(models.BucketConfig), nil
}

// Flush drops every memoized config in one atomic swap.
func (p *Provider) Flush() {
	p.cache.Store(&policyCache{gen: p.gen.Add(1)})
}

// Len returns the number of memoized configs in the current generation.
func (p *Provider) Len() int { return int(p.cache.Load().size.Load()) }
