// Package optcache memoizes an optimizer position's fitness metrics in
// Redis, keyed by the parameter tuple, so repeated evaluation of the
// same position (genetic re-selection of a surviving chromosome, or a
// resumed exhaustive run) skips re-executing the backtest. Grounded on
// libs/marketdata/cache.go's redis.Client wrapper and JSON
// marshal/unmarshal convention.
package optcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"xbacktest/internal/optimizer"
)

// ErrNoEntry is returned by Get when position has no cached fitness.
var ErrNoEntry = errors.New("optcache: no cached entry")

// Config configures a Cache's Redis connection and entry lifetime.
type Config struct {
	RedisURL string
	TTL      time.Duration
}

// Cache is a Redis-backed fitness memoization layer for one optimization
// run, scoped by RunID so concurrent runs never collide.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	runID  string
}

// New connects to Redis and verifies the connection with a Ping,
// matching libs/marketdata/cache.go's NewCache startup check.
func New(cfg Config, runID string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisURL, DB: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("optcache: connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl, runID: runID}, nil
}

func (c *Cache) key(position int) string {
	return fmt.Sprintf("optrun:%s:pos:%d", c.runID, position)
}

// Get returns the cached metrics for position, or ErrNoEntry if absent.
func (c *Cache) Get(ctx context.Context, position int) (optimizer.Metrics, error) {
	data, err := c.client.Get(ctx, c.key(position)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return optimizer.Metrics{}, ErrNoEntry
		}
		return optimizer.Metrics{}, fmt.Errorf("optcache: get: %w", err)
	}
	var m optimizer.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return optimizer.Metrics{}, fmt.Errorf("optcache: unmarshal: %w", err)
	}
	return m, nil
}

// Set stores m under position, to expire after the Cache's TTL.
func (c *Cache) Set(ctx context.Context, position int, m optimizer.Metrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("optcache: marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(position), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("optcache: set: %w", err)
	}
	return nil
}

// Wrap returns a RunFunc that checks the cache before delegating to
// inner, and populates the cache on a miss — the memoization seam the
// optimizer's BatchRunner is built against.
func (c *Cache) Wrap(inner optimizer.RunFunc) optimizer.RunFunc {
	return func(ctx context.Context, position int) (optimizer.Metrics, error) {
		if m, err := c.Get(ctx, position); err == nil {
			return m, nil
		} else if !errors.Is(err, ErrNoEntry) {
			return optimizer.Metrics{}, err
		}
		m, err := inner(ctx, position)
		if err != nil {
			return optimizer.Metrics{}, err
		}
		if err := c.Set(ctx, position, m); err != nil {
			return m, err
		}
		return m, nil
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error { return c.client.Close() }
