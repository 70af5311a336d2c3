// Package xtesting provides ambient test tooling shared across this
// engine's packages: an injectable Clock, golden-snapshot comparison,
// and a determinism harness, adapted from the teacher's libs/testing
// package and retargeted so simulated "now" is never read from
// time.Now() inside the dispatcher or broker (spec.md §5, §8 property 9).
package xtesting

import (
	"context"
	"time"
)

// Clock provides "now" for code that must not call time.Now() directly,
// so replays stay deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock uses real system time (production CLI entry point).
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T, for tests asserting against one instant.
type FixedClock struct {
	T time.Time
}

func (fc FixedClock) Now() time.Time { return fc.T }

// ManualClock allows a test to advance simulated time explicitly.
type ManualClock struct {
	current time.Time
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{current: start}
}

func (mc *ManualClock) Now() time.Time { return mc.current }

// Advance moves the clock forward by d.
func (mc *ManualClock) Advance(d time.Duration) {
	mc.current = mc.current.Add(d)
}

// Set moves the clock to t directly.
func (mc *ManualClock) Set(t time.Time) {
	mc.current = t
}

type clockKey struct{}

// WithClock attaches c to ctx.
func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

// ClockFromContext retrieves the clock from ctx, defaulting to
// SystemClock when none was attached.
func ClockFromContext(ctx context.Context) Clock {
	if c, ok := ctx.Value(clockKey{}).(Clock); ok {
		return c
	}
	return SystemClock{}
}

// Now is a convenience wrapper around ClockFromContext(ctx).Now().
func Now(ctx context.Context) time.Time {
	return ClockFromContext(ctx).Now()
}
