package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
)

// reconnectingDB wraps a *sql.DB, retrying ExecContext and QueryContext
// exactly once if the driver reports a transient disconnection
// (driver.ErrBadConn or sql.ErrConnDone); QueryRowContext is passed
// through without a retry. *sql.DB already pools healthy connections internally;
// this decorator exists for the case spec'd in §4.E/§5 where the
// underlying server dropped every pooled connection (a restart, a
// network blip) and the pool itself needs a nudge via Ping before the
// retried query has anything healthy to use.
type reconnectingDB struct {
	db         *sql.DB
	driverName string
	dsn        string
}

func withReconnect(db *sql.DB, driverName, dsn string) deferredExecer {
	return &reconnectingDB{db: db, driverName: driverName, dsn: dsn}
}

func isTransient(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

func (r *reconnectingDB) recover(ctx context.Context) {
	slog.Warn("cache: transient database error, pinging to recover connection pool", "driver", r.driverName)
	if err := r.db.PingContext(ctx); err != nil {
		slog.Error("cache: reconnect ping failed", "driver", r.driverName, "error", err)
	}
}

func (r *reconnectingDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil && isTransient(err) {
		r.recover(ctx)
		return r.db.ExecContext(ctx, query, args...)
	}
	return res, err
}

func (r *reconnectingDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil && isTransient(err) {
		r.recover(ctx)
		return r.db.QueryContext(ctx, query, args...)
	}
	return rows, err
}

func (r *reconnectingDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, query, args...)
}
