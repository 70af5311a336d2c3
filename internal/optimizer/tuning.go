package optimizer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TuningFile is the on-disk shape of a genetic-optimizer tuning override,
// letting an operator hand-tune the search without recompiling (spec.md
// §4.8's population size / crossover / mutation / stagnation knobs).
// Grounded on the teacher's tools/cmd/ingest front-matter parsing, which
// uses the same gopkg.in/yaml.v3 decode-into-struct style.
type TuningFile struct {
	PopulationSize       int     `yaml:"population_size"`
	CrossoverProbability float64 `yaml:"crossover_probability"`
	MutationProbability  float64 `yaml:"mutation_probability"`
	MaxGeneration        int     `yaml:"max_generation"`
	StagnationAges       int     `yaml:"stagnation_ages"`
	Weights              struct {
		Return   float64 `yaml:"return"`
		Drawdown float64 `yaml:"drawdown"`
		Sharpe   float64 `yaml:"sharpe"`
	} `yaml:"weights"`
}

// LoadTuning reads a TuningFile from path and applies every non-zero
// field onto a GeneticConfig, leaving fields the file omits at their
// zero value so fillDefaults still supplies the spec.md §4.8 defaults.
func LoadTuning(path string) (GeneticConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GeneticConfig{}, fmt.Errorf("optimizer: read tuning file %q: %w", path, err)
	}
	var tf TuningFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return GeneticConfig{}, fmt.Errorf("optimizer: parse tuning file %q: %w", path, err)
	}
	return GeneticConfig{
		PopulationSize:       tf.PopulationSize,
		CrossoverProbability: tf.CrossoverProbability,
		MutationProbability:  tf.MutationProbability,
		MaxGeneration:        tf.MaxGeneration,
		StagnationAges:       tf.StagnationAges,
		Weights: ScoreWeights{
			Return:   tf.Weights.Return,
			Drawdown: tf.Weights.Drawdown,
			Sharpe:   tf.Weights.Sharpe,
		},
	}, nil
}
