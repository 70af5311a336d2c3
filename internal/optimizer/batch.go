package optimizer

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Metrics is the scalar outcome of one executor run, the
// SimplifiedMetrics the genetic score function and the exhaustive
// ranking both read (spec.md §4.8).
type Metrics struct {
	CumulativeReturn float64
	MaxDrawdown      float64
	SharpeRatio      float64
}

// RunFunc executes one parameter-space position in its own Executor and
// returns its summary metrics.
type RunFunc func(ctx context.Context, position int) (Metrics, error)

// BatchRunner owns the worker pool shared by both optimizer modes
// (spec.md §4.8: "Both modes share the batch-runner that owns the
// worker pool and its semaphore"). Workers default to the detected CPU
// count. Concurrency is bounded with golang.org/x/sync/semaphore and
// errors are collected with golang.org/x/sync/errgroup, mirroring the
// original's counting-semaphore-plus-mutex worker coordination
// (spec.md §5) in idiomatic Go rather than raw goroutines+WaitGroup.
type BatchRunner struct {
	workers int
	run     RunFunc
}

// NewBatchRunner builds a BatchRunner with the given worker slot count;
// 0 uses runtime.NumCPU().
func NewBatchRunner(workers int, run RunFunc) *BatchRunner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchRunner{workers: workers, run: run}
}

// RunBatch executes every position in positions, bounded to at most
// br.workers concurrent executors, and returns metrics in the same
// order as positions. The first error aborts remaining scheduling and is
// returned.
func (br *BatchRunner) RunBatch(ctx context.Context, positions []int) ([]Metrics, error) {
	results := make([]Metrics, len(positions))
	sem := semaphore.NewWeighted(int64(br.workers))
	g, gctx := errgroup.WithContext(ctx)

	for i, pos := range positions {
		i, pos := i, pos
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			m, err := br.run(gctx, pos)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
