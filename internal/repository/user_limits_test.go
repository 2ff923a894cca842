package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	pkgcache "RateGate/pkg/cache"
	pkghttp "RateGate/pkg/http"
	pkgkafka "RateGate/pkg/kafka"
)

func TestCacheUserLimitsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCacheUserLimits(pkgcache.NewMemoryCache())
	defer repo.Close()

	if _, err := repo.GetUserLimit(ctx, "42"); !errors.Is(err, domrepo.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	for userID, limit := range map[string]int64{"42": 3, "99": 10} {
		if err := repo.SaveUserLimit(ctx, &models.UserLimit{UserID: userID, Limit: limit}); err != nil {
			t.Fatalf("save %s: %v", userID, err)
		}
	}
	ul, err := repo.GetUserLimit(ctx, "42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ul.Limit != 3 || ul.UserID != "42" || ul.UpdatedAt.IsZero() {
		t.Fatalf("unexpected limit %+v", ul)
	}
	if err := repo.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestHTTPUserLimits(t *testing.T) {
	var saved models.UserLimit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/users/42/limit":
			_ = json.NewEncoder(w).Encode(models.UserLimit{Limit: 3})
		case r.Method == http.MethodPut && r.URL.Path == "/users/42/limit":
			_ = json.NewDecoder(r.Body).Decode(&saved)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	repo := NewHTTPUserLimits(pkghttp.NewClient(pkghttp.WithBaseURL(srv.URL)))
	ctx := context.Background()

	ul, err := repo.GetUserLimit(ctx, "42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ul.UserID != "42" || ul.Limit != 3 {
		t.Fatalf("unexpected limit %+v", ul)
	}

	if _, err := repo.GetUserLimit(ctx, "7"); !errors.Is(err, domrepo.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := repo.SaveUserLimit(ctx, &models.UserLimit{UserID: "42", Limit: 8}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Limit != 8 {
		t.Fatalf("server did not receive limit, got %+v", saved)
	}
}

type capturePublisher struct {
	topic string
	msg   pkgkafka.Message
}

func (p *capturePublisher) Publish(_ context.Context, topic string, msg pkgkafka.Message) error {
	p.topic, p.msg = topic, msg
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestKafkaEventPublisherAssignsID(t *testing.T) {
	cp := &capturePublisher{}
	pub := NewKafkaEventPublisher(cp, "rategate.limits")

	ev := &models.LimitChangedEvent{UserID: "42", Limit: 3}
	if err := pub.PublishLimitChanged(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ev.ID == "" || ev.ChangedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be set: %+v", ev)
	}
	if cp.topic != "rategate.limits" || string(cp.msg.Key) != "42" {
		t.Fatalf("unexpected publish topic=%s key=%s", cp.topic, cp.msg.Key)
	}
	if cp.msg.Headers[pkgkafka.HeaderEventID] != ev.ID {
		t.Fatalf("event id header mismatch: %v", cp.msg.Headers)
	}
}
