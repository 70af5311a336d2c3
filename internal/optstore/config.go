// Package optstore persists optimization-run results (one row per
// parameter tuple, plus daily-metrics rows) to Postgres via pgx,
// grounded on libs/database's Config/Connect retry-with-backoff shape
// and migrated with golang-migrate.
package optstore

import (
	"errors"
	"time"
)

var (
	// ErrInvalidDSN is returned when the DSN is empty.
	ErrInvalidDSN = errors.New("optstore: invalid or empty DSN")
	// ErrConnectionFailed is returned when connection attempts are exhausted.
	ErrConnectionFailed = errors.New("optstore: connection failed")
)

// Config configures an optstore connection pool, mirroring
// libs/database.Config's field set and defaults.
type Config struct {
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	RetryAttempts int
	RetryDelay    time.Duration

	// MigrationsPath points at a directory of golang-migrate SQL
	// migrations to apply on Connect.
	MigrationsPath string
}

// Validate checks the configuration and fills in defaults, matching
// libs/database.Config.Validate's in-place defaulting style.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrInvalidDSN
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = time.Minute
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return nil
}
