package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	pkgkafka "RateGate/pkg/kafka"
	applogger "RateGate/pkg/logger"
)

// Flusher drops every cached bucket config.
type Flusher interface {
	Flush()
}

// LimitEventsHandler flushes the local policy cache whenever any replica changes a limit.
// The whole cache is flushed, never a single entry.
type LimitEventsHandler struct {
	topic   string
	target  Flusher
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewLimitEventsHandler(topic string, target Flusher, metrics domrepo.Metrics, l *applogger.Logger) *LimitEventsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &LimitEventsHandler{topic: topic, target: target, metrics: metrics, log: l}
}

func (h *LimitEventsHandler) Topic() string { return h.topic }

func (h *LimitEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.LimitChangedEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("limit_event_unmarshal")
		return fmt.Errorf("decode limit event: %w", err)
	}

	h.target.Flush()
	h.metrics.RecordPolicyFlush("event")

	id := ev.ID
	if id == "" {
		id = pkgkafka.EventID(ctx)
	}
	h.log.Info("evict user limit cache",
		applogger.String("reason", "limit_changed"),
		applogger.String("user_id", ev.UserID),
		applogger.String("event_id", id),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*LimitEventsHandler)(nil)
