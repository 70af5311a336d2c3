package log

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// Event writes one JSON-object-per-line log entry at level, tagged with
// whatever RunInfo is attached to ctx, plus the given fields. Values
// under a sensitive-looking key (see RedactValue) are redacted before
// marshaling, since fields commonly carry a DSN or cache URL.
func Event(ctx context.Context, level, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.ExecutorID != "" {
		payload["executor_id"] = info.ExecutorID
	}
	if info.StrategyID != "" {
		payload["strategy_id"] = info.StrategyID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// Fatal logs a §7 fatal engine error at "error" level with its Kind and
// diagnostic fields, following the table in spec.md §7, then calls
// os.Exit(1). Callers at the CLI boundary use this; library code should
// return the error instead.
func Fatal(ctx context.Context, kind string, fields map[string]any) {
	f := map[string]any{"kind": kind}
	for k, v := range fields {
		f[k] = v
	}
	Event(ctx, "error", "fatal", f)
	os.Exit(1)
}

// Warn logs a non-fatal order error (spec.md §7's OrderRejected_*/
// OrderCanceled_Expired/OrderRejected_Degenerate rows), which the caller
// also delivers to the strategy via its own callback.
func Warn(ctx context.Context, event string, fields map[string]any) {
	Event(ctx, "warn", event, fields)
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if isSensitiveKey(key) {
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
