package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
)

type countingRepo struct {
	mu     sync.Mutex
	limits map[string]int64
	calls  atomic.Int32
	gate   chan struct{}
}

func (r *countingRepo) GetUserLimit(_ context.Context, userID string) (*models.UserLimit, error) {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limits[userID]
	if !ok {
		return nil, domrepo.ErrUserNotFound
	}
	return &models.UserLimit{UserID: userID, Limit: l}, nil
}

func (r *countingRepo) SaveUserLimit(_ context.Context, ul *models.UserLimit) error {
	r.mu.Lock()
	r.limits[ul.UserID] = ul.Limit
	r.mu.Unlock()
	return nil
}

func (r *countingRepo) Health(context.Context) error { return nil }
func (r *countingRepo) Close() error                 { return nil }

func TestStaticPolicyIgnoresKey(t *testing.T) {
	p := NewProvider(NewStaticPolicy(fiveper))
	a, _ := p.GetConfig(context.Background(), "a")
	b, _ := p.GetConfig(context.Background(), "b")
	if a != fiveper || b != fiveper {
		t.Fatalf("static policy must return its config for every key")
	}
	if p.Name() != PolicyStatic {
		t.Fatalf("unexpected name %s", p.Name())
	}
}

func TestUserPolicyMapsLimit(t *testing.T) {
	repo := &countingRepo{limits: map[string]int64{"42": 3}}
	p := NewProvider(NewUserPolicy(repo, 0, models.RefillIntervally))

	cfg, err := p.GetConfig(context.Background(), "42")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	want := models.BucketConfig{Capacity: 3, RefillTokens: 3, RefillPeriod: time.Minute, RefillMode: models.RefillIntervally}
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}

	if _, err := p.GetConfig(context.Background(), "7"); !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
}

func TestProviderCachesUntilFlush(t *testing.T) {
	repo := &countingRepo{limits: map[string]int64{"42": 3}}
	p := NewProvider(NewUserPolicy(repo, time.Minute, ""))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := p.GetConfig(ctx, "42"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if n := repo.calls.Load(); n != 1 {
		t.Fatalf("expected one lookup, got %d", n)
	}

	_ = repo.SaveUserLimit(ctx, &models.UserLimit{UserID: "42", Limit: 10})
	cfg, _ := p.GetConfig(ctx, "42")
	if cfg.Capacity != 3 {
		t.Fatalf("cached config should survive until flush, got %d", cfg.Capacity)
	}

	p.Flush()
	if p.Len() != 0 {
		t.Fatalf("flush must empty the cache, len %d", p.Len())
	}
	cfg, _ = p.GetConfig(ctx, "42")
	if cfg.Capacity != 10 || repo.calls.Load() != 2 {
		t.Fatalf("expected fresh lookup after flush, got capacity %d calls %d", cfg.Capacity, repo.calls.Load())
	}
}

func TestProviderDoesNotCacheFailures(t *testing.T) {
	repo := &countingRepo{limits: map[string]int64{}}
	p := NewProvider(NewUserPolicy(repo, time.Minute, ""))
	ctx := context.Background()

	_, _ = p.GetConfig(ctx, "42")
	_ = repo.SaveUserLimit(ctx, &models.UserLimit{UserID: "42", Limit: 4})
	cfg, err := p.GetConfig(ctx, "42")
	if err != nil || cfg.Capacity != 4 {
		t.Fatalf("expected lookup to be retried, got %+v %v", cfg, err)
	}
}

func TestProviderCollapsesConcurrentMisses(t *testing.T) {
	repo := &countingRepo{limits: map[string]int64{"42": 3}, gate: make(chan struct{})}
	p := NewProvider(NewUserPolicy(repo, time.Minute, ""))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.GetConfig(context.Background(), "42"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}

	// Let the callers pile up behind the first lookup.
	deadline := time.Now().Add(time.Second)
	for repo.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	if n := repo.calls.Load(); n != 1 {
		t.Fatalf("expected a single shared lookup, got %d", n)
	}
}
