package db

import (
	"context"
	"fmt"
	"time"

	"concierge_backend/platform/config"
	"concierge_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	startupAttempts  = 5
	startupBaseDelay = 2 * time.Second
)

// Retry runs fn until it succeeds, ctx ends or attempts run out. The wait
// before attempt n+1 is n*n*base.
func Retry(ctx context.Context, log *logger.Logger, name string, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: attempts must be positive", name)
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		log.Warn("startup step failed", "step", name, "attempt", n, "of", attempts, "error", lastErr)
		if n == attempts {
			break
		}

		timer := time.NewTimer(time.Duration(n*n) * base)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}

// Connect opens the pool, retrying while Postgres is still starting.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := Retry(ctx, log, "database connection", startupAttempts, startupBaseDelay, func(ctx context.Context) error {
		p, err := NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	return pool, err
}

// ConnectAndMigrate is Connect followed by RunMigrations, also retried.
func ConnectAndMigrate(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	pool, err := Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	err = Retry(ctx, log, "database migrations", startupAttempts, startupBaseDelay, func(ctx context.Context) error {
		return RunMigrations(ctx, pool)
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
