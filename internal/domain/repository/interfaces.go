package repository

import (
	"context"
	"errors"

	"RateGate/internal/domain/models"
)

// ErrUserNotFound is returned by a UserLimitRepository when the identity has no limit record.
var ErrUserNotFound = errors.New("user limit not found")

// UserLimitRepository is the persistent source of per-user limits.
type UserLimitRepository interface {
	GetUserLimit(ctx context.Context, userID string) (*models.UserLimit, error)
	SaveUserLimit(ctx context.Context, limit *models.UserLimit) error
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher ships limit-change events to other replicas.
type EventPublisher interface {
	PublishLimitChanged(ctx context.Context, ev *models.LimitChangedEvent) error
	Close() error
}

type Metrics interface {
	RecordAdmission(outcome string)
	RecordPolicyCache(hit bool)
	RecordPolicyFlush(reason string)
	RecordLookup(policy string, seconds float64, err error)
	SetBuckets(n int)
	RecordError(kind string)
}
