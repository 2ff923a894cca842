package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	"RateGate/internal/repository"
	"RateGate/internal/service/ratelimit"
	pkgcache "RateGate/pkg/cache"
	"RateGate/pkg/metrics"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.LimitChangedEvent
	err    error
}

func (p *recordingPublisher) PublishLimitChanged(_ context.Context, ev *models.LimitChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newAdmin(t *testing.T, pub domrepo.EventPublisher) (*LimitAdmin, *repository.CacheUserLimits, *ratelimit.Limiter) {
	t.Helper()
	repo := repository.NewCacheUserLimits(pkgcache.NewMemoryCache())
	t.Cleanup(func() { _ = repo.Close() })

	provider := ratelimit.NewProvider(ratelimit.NewUserPolicy(repo, time.Minute, models.RefillGreedy))
	limiter := ratelimit.NewLimiter(ratelimit.NewBucketStore(nil), provider, nil)
	return NewLimitAdmin(repo, pub, limiter, metrics.Noop{}, time.Minute, nil), repo, limiter
}

func TestLimitAdminSetAndGet(t *testing.T) {
	pub := &recordingPublisher{}
	admin, _, _ := newAdmin(t, pub)
	ctx := context.Background()

	if _, err := admin.GetLimit(ctx, "42"); !errors.Is(err, domrepo.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	resp, err := admin.SetLimit(ctx, "42", 3)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if resp.Limit != 3 || resp.RefillPeriod != "1m0s" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(pub.events) != 1 || pub.events[0].UserID != "42" || pub.events[0].Limit != 3 {
		t.Fatalf("expected one limit event, got %+v", pub.events)
	}
	if pub.events[0].ID == "" {
		t.Fatalf("limit event has no id")
	}
	if _, err := admin.SetLimit(ctx, "42", 4); err != nil {
		t.Fatalf("second set: %v", err)
	}
	if len(pub.events) != 2 || pub.events[1].ID == pub.events[0].ID {
		t.Fatalf("each change needs its own event id: %+v", pub.events)
	}

	got, err := admin.GetLimit(ctx, "42")
	if err != nil || got.Limit != 3 {
		t.Fatalf("get after set: %+v, %v", got, err)
	}
}

func TestLimitAdminPublishFailureIsNotFatal(t *testing.T) {
	admin, _, _ := newAdmin(t, &recordingPublisher{err: errors.New("broker down")})
	if _, err := admin.SetLimit(context.Background(), "42", 3); err != nil {
		t.Fatalf("expected save to succeed when publish fails, got %v", err)
	}
}

func TestLimitAdminFlushAndStats(t *testing.T) {
	admin, repo, limiter := newAdmin(t, repository.NoopEventPublisher{})
	ctx := context.Background()
	if err := repo.SaveUserLimit(ctx, &models.UserLimit{UserID: "42", Limit: 3}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := limiter.Allow(ctx, "42"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	st := admin.Stats()
	if st.Buckets != 1 || st.CachedConfigs != 1 || st.Policy != ratelimit.PolicyUser {
		t.Fatalf("unexpected stats %+v", st)
	}

	admin.Flush("admin")
	st = admin.Stats()
	if st.CachedConfigs != 0 || st.Buckets != 1 {
		t.Fatalf("flush should clear configs and keep buckets, got %+v", st)
	}
}
