package optstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"xbacktest/internal/analyzer"
	"xbacktest/internal/log"
	"xbacktest/internal/optimizer"
)

// Store wraps sql.DB (driven by pgx/v5/stdlib) with optimization-run
// persistence helpers, grounded on libs/database/connection.go's DB
// wrapper.
type Store struct {
	db  *sql.DB
	cfg *Config
}

// Connect establishes a connection with retry-with-backoff
// (grounded on libs/database/connection.go's Connect), then applies any
// migrations found under cfg.MigrationsPath.
func Connect(ctx context.Context, cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("optstore: invalid config: %w", err)
	}

	var db *sql.DB
	var err error
	delay := cfg.RetryDelay
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}

		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			if attempt == cfg.RetryAttempts {
				return nil, fmt.Errorf("%w: open: %v", ErrConnectionFailed, err)
			}
			continue
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		if err = db.PingContext(ctx); err != nil {
			db.Close()
			if attempt == cfg.RetryAttempts {
				return nil, fmt.Errorf("%w: ping: %v", ErrConnectionFailed, err)
			}
			continue
		}
		break
	}

	s := &Store{db: db, cfg: cfg}
	if cfg.MigrationsPath != "" {
		if err := s.migrate(cfg.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
	}
	log.Event(ctx, "info", "optstore_connected", map[string]any{"dsn": cfg.DSN})
	return s, nil
}

// migrate applies every pending SQL migration under path using the
// registered pgx v5 database driver and file source, matching
// libs/database's golang-migrate dependency.
func (s *Store) migrate(path string) error {
	m, err := migrate.New("file://"+path, s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("optstore: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("optstore: migrate up: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun inserts one optimization_runs row and every result row beneath
// it inside one transaction.
func (s *Store) SaveRun(ctx context.Context, runID string, mode string, results []optimizer.ExhaustiveResult, bestPosition int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("optstore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO optimization_runs (run_id, mode, best_position, created_at) VALUES ($1, $2, $3, now())`,
		runID, mode, bestPosition); err != nil {
		return fmt.Errorf("optstore: insert run: %w", err)
	}

	for _, r := range results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO optimization_results (run_id, position, cumulative_return, max_drawdown, sharpe_ratio)
			 VALUES ($1, $2, $3, $4, $5)`,
			runID, r.Position, r.Metrics.CumulativeReturn, r.Metrics.MaxDrawdown, r.Metrics.SharpeRatio); err != nil {
			return fmt.Errorf("optstore: insert result: %w", err)
		}
	}

	return tx.Commit()
}

// SaveDailyMetrics persists one executor run's daily-metrics rows under
// runID.
func (s *Store) SaveDailyMetrics(ctx context.Context, runID string, rows []analyzer.DailyMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("optstore: begin: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_metrics (run_id, day, equity, cash, margin, position_profit, realized_profit, trades_count, traded_volume, cumulative_trades)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			runID, row.Date, row.Equity, row.Cash, row.Margin, row.PositionProfit, row.RealizedProfit, row.TradesCount, row.TradedVolume, row.CumulativeTrades); err != nil {
			return fmt.Errorf("optstore: insert daily metrics: %w", err)
		}
	}

	return tx.Commit()
}
