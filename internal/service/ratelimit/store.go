package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"RateGate/internal/domain/models"
	"RateGate/pkg/clock"
)

// ConfigSupplier produces the configuration for a bucket that does not exist yet.
type ConfigSupplier func() (models.BucketConfig, error)

// BucketStore maps keys to buckets. Entries are added lazily and never removed,
// so an existing bucket keeps the config it was created with.
type BucketStore struct {
	buckets sync.Map // string -> *Bucket
	size    atomic.Int64
	clock   clock.Clock
}

// NewBucketStore creates an empty store. A nil clock means the wall clock.
func NewBucketStore(clk clock.Clock) *BucketStore {
	if clk == nil {
		clk = clock.System
	}
	return &BucketStore{clock: clk}
}

// Resolve returns the bucket for key, creating it from supplier on first use.
// supplier runs at most once per call and never under a store lock; when two
// first requests race, only one bucket is stored and both receive it.
func (s *BucketStore) Resolve(key string, supplier ConfigSupplier) (*Bucket, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrMissingKey
	}
	if b, ok := s.buckets.Load(key); ok {
		return b.(*Bucket), nil
	}

	cfg, err := supplier()
	if err != nil {
		return nil, fmt.Errorf("resolve bucket %q: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resolve bucket %q: %w", key, err)
	}

	actual, loaded := s.buckets.LoadOrStore(key, newBucket(cfg, s.clock))
	if !loaded {
		s.size.Add(1)
	}
	return actual.(*Bucket), nil
}

// Len returns the number of buckets held.
func (s *BucketStore) Len() int { return int(s.size.Load()) }
