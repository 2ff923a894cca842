package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig is returned when a bucket configuration cannot back a usable bucket.
var ErrInvalidConfig = errors.New("ratelimit: invalid bucket config")

// RefillMode selects how a bucket regains tokens over time.
type RefillMode string

const (
	// RefillGreedy adds tokens continuously, proportional to elapsed time.
	RefillGreedy RefillMode = "greedy"
	// RefillIntervally adds RefillTokens in one batch each time a full period elapses.
	RefillIntervally RefillMode = "intervally"
)

// BucketConfig is the immutable shape of a token bucket.
// RefillTokens may exceed Capacity; refills are still capped at Capacity.
type BucketConfig struct {
	Capacity     int64
	RefillTokens int64
	RefillPeriod time.Duration
	RefillMode   RefillMode
}

// Validate reports ErrInvalidConfig for non-positive capacity, refill tokens or period,
// and for sizes whose nanosecond bookkeeping would overflow int64.
func (c BucketConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillTokens <= 0 {
		return fmt.Errorf("%w: refill tokens must be > 0, got %d", ErrInvalidConfig, c.RefillTokens)
	}
	if c.RefillPeriod <= 0 {
		return fmt.Errorf("%w: refill period must be > 0, got %s", ErrInvalidConfig, c.RefillPeriod)
	}
	if c.Capacity > math.MaxInt64/int64(c.RefillPeriod) || c.RefillTokens > math.MaxInt64/int64(c.RefillPeriod) {
		return fmt.Errorf("%w: capacity or refill tokens too large for a %s period", ErrInvalidConfig, c.RefillPeriod)
	}
	switch c.RefillMode {
	case "", RefillGreedy, RefillIntervally:
	default:
		return fmt.Errorf("%w: unknown refill mode %q", ErrInvalidConfig, c.RefillMode)
	}
	return nil
}

// Mode returns the refill mode, defaulting to greedy.
func (c BucketConfig) Mode() RefillMode {
	if c.RefillMode == "" {
		return RefillGreedy
	}
	return c.RefillMode
}

// UserLimit maps a user id to a requests-per-minute allowance.
type UserLimit struct {
	UserID    string    `json:"user_id"`
	Limit     int64     `json:"limit"`
	UpdatedAt time.Time `json:"updated_at"`
}
