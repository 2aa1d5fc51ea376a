package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresLimiter is a quota limiter backed by one row per (user, limiter)
// on the same *sql.DB the Postgres cache backend uses. Consumption is a
// single atomic INSERT ... ON CONFLICT DO UPDATE, so concurrent consume
// calls for the same user never lose an update even without
// cross-request locking.
type PostgresLimiter struct {
	db    *sql.DB
	name  string
	limit int
}

// NewPostgresLimiter constructs a PostgresLimiter against an existing
// connection pool. The `quota_usage` table (user_id TEXT, limiter_name
// TEXT, used BIGINT, PRIMARY KEY (user_id, limiter_name)) is created by the
// Postgres cache backend's migrations, which cache.NewPostgres runs.
func NewPostgresLimiter(db *sql.DB, name string, limit int) *PostgresLimiter {
	return &PostgresLimiter{db: db, name: name, limit: limit}
}

// Name implements Limiter.
func (p *PostgresLimiter) Name() string { return p.name }

// EnsureAvailable implements Limiter.
func (p *PostgresLimiter) EnsureAvailable(ctx context.Context, userID string) error {
	avail, err := p.Available(ctx, userID)
	if err != nil {
		return err
	}
	if avail <= 0 {
		return &QuotaExceeded{LimiterName: p.name, Available: avail, Requested: 1}
	}
	return nil
}

// Consume implements Limiter.
func (p *PostgresLimiter) Consume(ctx context.Context, userID string, inputTokens, outputTokens int) error {
	delta := inputTokens + outputTokens
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO quota_usage (user_id, limiter_name, used)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, limiter_name)
		DO UPDATE SET used = quota_usage.used + $3
	`, userID, p.name, delta)
	if err != nil {
		return fmt.Errorf("quota: consume %s: %w", p.name, err)
	}
	return nil
}

// Available implements Limiter.
func (p *PostgresLimiter) Available(ctx context.Context, userID string) (int, error) {
	var used int
	err := p.db.QueryRowContext(ctx, `
		SELECT used FROM quota_usage WHERE user_id = $1 AND limiter_name = $2
	`, userID, p.name).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return p.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: available %s: %w", p.name, err)
	}
	remaining := p.limit - used
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
