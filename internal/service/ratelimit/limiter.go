package ratelimit

import (
	"context"

	"RateGate/internal/domain/models"
	"RateGate/internal/domain/repository"
	"RateGate/pkg/metrics"
)

// Limiter joins the bucket store with the policy provider.
type Limiter struct {
	store   *BucketStore
	policy  *Provider
	metrics repository.Metrics
}

// NewLimiter creates a Limiter. A nil metrics recorder is replaced with a no-op.
func NewLimiter(store *BucketStore, policy *Provider, m repository.Metrics) *Limiter {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Limiter{store: store, policy: policy, metrics: m}
}

// Resolve returns the bucket for key, consulting the policy only for unseen keys.
func (l *Limiter) Resolve(ctx context.Context, key string) (*Bucket, error) {
	b, err := l.store.Resolve(key, func() (models.BucketConfig, error) {
		return l.policy.GetConfig(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	l.metrics.SetBuckets(l.store.Len())
	return b, nil
}

// Allow resolves key and tries to take one token from its bucket.
func (l *Limiter) Allow(ctx context.Context, key string) (Probe, error) {
	b, err := l.Resolve(ctx, key)
	if err != nil {
		return Probe{}, err
	}
	return b.TryConsumeAndProbe(1), nil
}

// Store returns the underlying bucket store.
func (l *Limiter) Store() *BucketStore { return l.store }

// Policy returns the underlying policy provider.
func (l *Limiter) Policy() *Provider { return l.policy }
