package optimizer

import "context"

// ExhaustiveResult pairs one evaluated position with its metrics.
type ExhaustiveResult struct {
	Position int
	Metrics  Metrics
}

// RunExhaustive enumerates every position 0..Total-1 through br, ranking
// by cumulative return, and returns the full result set plus the best
// position found (spec.md §4.8). A pool of W worker slots is maintained
// by the shared BatchRunner; when any slot signals completion the next
// position is scheduled.
func RunExhaustive(ctx context.Context, ps *ParameterSpace, br *BatchRunner) ([]ExhaustiveResult, int, error) {
	if ps.Total == 0 {
		return nil, -1, nil // ParameterSpaceEmpty: no-op (spec.md §7)
	}
	positions := make([]int, ps.Total)
	for i := range positions {
		positions[i] = i
	}
	metrics, err := br.RunBatch(ctx, positions)
	if err != nil {
		return nil, -1, err
	}
	results := make([]ExhaustiveResult, len(positions))
	best := 0
	for i, pos := range positions {
		results[i] = ExhaustiveResult{Position: pos, Metrics: metrics[i]}
		if metrics[i].CumulativeReturn > metrics[best].CumulativeReturn {
			best = i
		}
	}
	return results, results[best].Position, nil
}
