// Package log provides the structured, line-oriented JSON logging used
// throughout the engine (SPEC_FULL.md §A.1), adapted from the teacher's
// libs/observability package: a context-carried run identity plus a
// package-level event logger, retargeted from orchestration flow/task
// ids to this engine's run/executor/strategy identity.
package log

import "context"

type contextKey string

const (
	runIDKey      contextKey = "run_id"
	executorIDKey contextKey = "executor_id"
	strategyIDKey contextKey = "strategy_id"
	symbolKey     contextKey = "symbol"
)

// RunInfo carries trace identifiers through a request-scoped context:
// which optimizer/walk-forward run, which Executor instance within it,
// which strategy, and which instrument a log line concerns.
type RunInfo struct {
	RunID      string
	ExecutorID string
	StrategyID string
	Symbol     string
}

// WithRunInfo attaches non-empty fields of info to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	if info.RunID != "" {
		ctx = context.WithValue(ctx, runIDKey, info.RunID)
	}
	if info.ExecutorID != "" {
		ctx = context.WithValue(ctx, executorIDKey, info.ExecutorID)
	}
	if info.StrategyID != "" {
		ctx = context.WithValue(ctx, strategyIDKey, info.StrategyID)
	}
	if info.Symbol != "" {
		ctx = context.WithValue(ctx, symbolKey, info.Symbol)
	}
	return ctx
}

// RunInfoFromContext reads back whatever RunInfo fields were attached by
// WithRunInfo, defaulting to the zero value for anything missing.
func RunInfoFromContext(ctx context.Context) RunInfo {
	info := RunInfo{}
	if v := ctx.Value(runIDKey); v != nil {
		if s, ok := v.(string); ok {
			info.RunID = s
		}
	}
	if v := ctx.Value(executorIDKey); v != nil {
		if s, ok := v.(string); ok {
			info.ExecutorID = s
		}
	}
	if v := ctx.Value(strategyIDKey); v != nil {
		if s, ok := v.(string); ok {
			info.StrategyID = s
		}
	}
	if v := ctx.Value(symbolKey); v != nil {
		if s, ok := v.(string); ok {
			info.Symbol = s
		}
	}
	return info
}
