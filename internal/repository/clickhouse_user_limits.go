package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	pkgch "RateGate/pkg/clickhouse"
	applogger "RateGate/pkg/logger"
)

// CHUserLimits reads and writes limits in a ReplacingMergeTree table.
// Writes are appends; FINAL collapses to the latest row per user.
type CHUserLimits struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

func NewCHUserLimits(ch *pkgch.Client, table string, l *applogger.Logger) *CHUserLimits {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHUserLimits{
		client: ch,
		db:     ch.DB(),
		table:  ch.Database() + "." + table,
		l:      l,
	}
}

func (s *CHUserLimits) GetUserLimit(ctx context.Context, userID string) (*models.UserLimit, error) {
	q := fmt.Sprintf(`
        SELECT user_id, limit_per_minute, updated_at
        FROM %s FINAL
        WHERE user_id = ?
        LIMIT 1`, s.table)

	var ul models.UserLimit
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&ul.UserID, &ul.Limit, &ul.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrUserNotFound
		}
		s.l.Error("clickhouse get_user_limit query error",
			applogger.String("table", s.table),
			applogger.String("user_id", userID),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get user limit: %w", err)
	}
	return &ul, nil
}

func (s *CHUserLimits) SaveUserLimit(ctx context.Context, limit *models.UserLimit) error {
	if limit.UpdatedAt.IsZero() {
		limit.UpdatedAt = time.Now().UTC()
	}
	q := fmt.Sprintf("INSERT INTO %s (user_id, limit_per_minute, updated_at) VALUES (?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, limit.UserID, limit.Limit, limit.UpdatedAt); err != nil {
		s.l.Error("clickhouse save_user_limit error",
			applogger.String("table", s.table),
			applogger.String("user_id", limit.UserID),
			applogger.Error(err),
		)
		return fmt.Errorf("save user limit: %w", err)
	}
	return nil
}

func (s *CHUserLimits) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHUserLimits) Close() error {
	return s.client.Close()
}
