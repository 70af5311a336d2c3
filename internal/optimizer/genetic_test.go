package optimizer_test

import (
	"context"
	"math/rand"
	"testing"

	"xbacktest/internal/optimizer"
	"xbacktest/internal/xtesting"
)

// TestRunGeneticDeterministic exercises spec.md §8 property 9: given the
// same seeded Rand, the genetic optimizer must produce an identical
// elitist sequence across independent runs over the same parameter
// space and fitness function.
func TestRunGeneticDeterministic(t *testing.T) {
	ps := optimizer.New([]optimizer.Dimension{
		{StrategyIndex: 0, ParamName: "x", Range: optimizer.Range{Start: 0, End: 19, Step: 1}},
	})

	runPosition := func(_ context.Context, position int) (optimizer.Metrics, error) {
		values, err := ps.Values(position)
		if err != nil {
			return optimizer.Metrics{}, err
		}
		x := values[0].Value
		return optimizer.Metrics{CumulativeReturn: x, SharpeRatio: x / 10, MaxDrawdown: 0}, nil
	}
	br := optimizer.NewBatchRunner(2, runPosition)

	run := func() any {
		cfg := optimizer.GeneticConfig{
			PopulationSize: 8,
			MaxGeneration:  12,
			StagnationAges: 4,
			Rand:           rand.New(rand.NewSource(42)),
		}
		res, err := optimizer.RunGenetic(context.Background(), ps, cfg, br)
		if err != nil {
			t.Fatalf("RunGenetic: %v", err)
		}
		return res
	}

	xtesting.AssertDeterministic(t, run)
}
