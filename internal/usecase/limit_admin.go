package usecase

import (
	"context"
	"fmt"
	"time"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	"RateGate/internal/service/ratelimit"
	applogger "RateGate/pkg/logger"

	"github.com/google/uuid"
)

// LimitAdmin backs the operator endpoints: read and change per-user limits, flush the policy cache, report stats.
type LimitAdmin struct {
	repo      domrepo.UserLimitRepository
	publisher domrepo.EventPublisher
	limiter   *ratelimit.Limiter
	metrics   domrepo.Metrics
	period    time.Duration
	log       *applogger.Logger
}

func NewLimitAdmin(
	repo domrepo.UserLimitRepository,
	publisher domrepo.EventPublisher,
	limiter *ratelimit.Limiter,
	metrics domrepo.Metrics,
	period time.Duration,
	l *applogger.Logger,
) *LimitAdmin {
	if l == nil {
		l = applogger.Nop()
	}
	return &LimitAdmin{
		repo:      repo,
		publisher: publisher,
		limiter:   limiter,
		metrics:   metrics,
		period:    period,
		log:       l.With(applogger.String("component", "limit_admin")),
	}
}

func (a *LimitAdmin) GetLimit(ctx context.Context, userID string) (*models.UserLimitResponse, error) {
	ul, err := a.repo.GetUserLimit(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.response(ul), nil
}

// SetLimit stores the new limit and announces it. Existing buckets for the user keep their old shape;
// the new limit applies once the policy cache has been flushed and the user has no bucket yet.
func (a *LimitAdmin) SetLimit(ctx context.Context, userID string, limit int64) (*models.UserLimitResponse, error) {
	ul := &models.UserLimit{UserID: userID, Limit: limit, UpdatedAt: time.Now().UTC()}
	if err := a.repo.SaveUserLimit(ctx, ul); err != nil {
		a.metrics.RecordError("save_user_limit")
		return nil, fmt.Errorf("save limit: %w", err)
	}

	ev := &models.LimitChangedEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Limit:     limit,
		ChangedAt: ul.UpdatedAt,
	}
	if err := a.publisher.PublishLimitChanged(ctx, ev); err != nil {
		// The scheduled flush still picks the change up.
		a.metrics.RecordError("publish_limit_changed")
		a.log.Warn("publish limit change failed",
			applogger.String("user_id", userID),
			applogger.Error(err),
		)
	}

	a.log.Info("user limit changed",
		applogger.String("user_id", userID),
		applogger.Int64("limit", limit),
		applogger.String("event_id", ev.ID),
	)
	return a.response(ul), nil
}

// Flush drops every cached bucket config on this replica.
func (a *LimitAdmin) Flush(reason string) {
	a.limiter.Policy().Flush()
	a.metrics.RecordPolicyFlush(reason)
	a.log.Info("evict user limit cache", applogger.String("reason", reason))
}

func (a *LimitAdmin) Stats() *models.StatsResponse {
	return &models.StatsResponse{
		Buckets:       a.limiter.Store().Len(),
		CachedConfigs: a.limiter.Policy().Len(),
		Policy:        a.limiter.Policy().Name(),
	}
}

func (a *LimitAdmin) response(ul *models.UserLimit) *models.UserLimitResponse {
	resp := &models.UserLimitResponse{
		UserID:       ul.UserID,
		Limit:        ul.Limit,
		RefillPeriod: a.period.String(),
	}
	if !ul.UpdatedAt.IsZero() {
		resp.UpdatedAt = ul.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
