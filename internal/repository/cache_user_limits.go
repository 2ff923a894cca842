package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	pkgcache "RateGate/pkg/cache"
)

const userLimitPrefix = "user_limit"

// CacheUserLimits stores limits in a key/value cache: Redis for shared deployments, memory for dev.
type CacheUserLimits struct {
	cache pkgcache.Service
}

func NewCacheUserLimits(c pkgcache.Service) *CacheUserLimits {
	return &CacheUserLimits{cache: c}
}

func (r *CacheUserLimits) GetUserLimit(ctx context.Context, userID string) (*models.UserLimit, error) {
	var ul models.UserLimit
	if err := r.cache.Get(ctx, pkgcache.GenerateKey(userLimitPrefix, userID), &ul); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, domrepo.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user limit %s: %w", userID, err)
	}
	return &ul, nil
}

func (r *CacheUserLimits) SaveUserLimit(ctx context.Context, limit *models.UserLimit) error {
	if limit.UpdatedAt.IsZero() {
		limit.UpdatedAt = time.Now().UTC()
	}
	if err := r.cache.Set(ctx, pkgcache.GenerateKey(userLimitPrefix, limit.UserID), limit, 0); err != nil {
		return fmt.Errorf("save user limit %s: %w", limit.UserID, err)
	}
	return nil
}

func (r *CacheUserLimits) Health(ctx context.Context) error {
	return r.cache.Ping(ctx)
}

func (r *CacheUserLimits) Close() error {
	return r.cache.Close()
}
