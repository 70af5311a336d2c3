// Package optimizer implements the parameter-space enumeration and the
// exhaustive and genetic search modes of spec.md §4.8, sharing one
// worker-pool batch runner between them.
package optimizer

import "fmt"

// Range is one parameter's (start, end, step) optimization range
// (spec.md §3 StrategyConfig).
type Range struct {
	Start float64
	End   float64
	Step  float64
}

// Size returns the number of discrete values this range contributes:
// floor((end-start)/step) + 1.
func (r Range) Size() int {
	if r.Step <= 0 {
		return 1
	}
	n := int((r.End-r.Start)/r.Step) + 1
	if n < 1 {
		return 1
	}
	return n
}

// ValueAt returns the concrete value for discrete index i within this
// range.
func (r Range) ValueAt(i int) float64 {
	return r.Start + float64(i)*r.Step
}

// Dimension names one tunable parameter's position in the space: which
// strategy and which parameter name it belongs to.
type Dimension struct {
	StrategyIndex int
	ParamName     string
	Range         Range
}

// ParameterSpace is the Cartesian product of every strategy's
// per-parameter ranges in one optimization run (spec.md §4.8, Glossary).
// Index -> tuple decoding uses a precomputed mixed-radix weight table,
// the same schema as mixed-radix counting.
type ParameterSpace struct {
	Dims    []Dimension
	sizes   []int
	weights []int // weights[i] = product of sizes[i+1:]
	Total   int
}

// New builds a ParameterSpace from dims, precomputing the mixed-radix
// weight table. An empty dims list yields Total == 0, matching the
// ParameterSpaceEmpty error kind of spec.md §7 (the optimizer run
// no-ops rather than erroring).
func New(dims []Dimension) *ParameterSpace {
	ps := &ParameterSpace{Dims: dims}
	ps.sizes = make([]int, len(dims))
	for i, d := range dims {
		ps.sizes[i] = d.Range.Size()
	}
	ps.weights = make([]int, len(dims))
	w := 1
	for i := len(dims) - 1; i >= 0; i-- {
		ps.weights[i] = w
		w *= ps.sizes[i]
	}
	ps.Total = w
	return ps
}

// Decode maps a position 0 <= p < Total to its per-dimension index
// tuple via mixed-radix division, the bijective inverse of Encode
// (spec.md §8 property 8).
func (ps *ParameterSpace) Decode(p int) ([]int, error) {
	if p < 0 || p >= ps.Total {
		return nil, fmt.Errorf("optimizer: position %d out of range [0,%d)", p, ps.Total)
	}
	tuple := make([]int, len(ps.Dims))
	rem := p
	for i := range ps.Dims {
		tuple[i] = rem / ps.weights[i]
		rem %= ps.weights[i]
	}
	return tuple, nil
}

// Encode maps a per-dimension index tuple back to its position, the
// bijective inverse of Decode.
func (ps *ParameterSpace) Encode(tuple []int) (int, error) {
	if len(tuple) != len(ps.Dims) {
		return 0, fmt.Errorf("optimizer: tuple length %d != dimension count %d", len(tuple), len(ps.Dims))
	}
	p := 0
	for i, idx := range tuple {
		if idx < 0 || idx >= ps.sizes[i] {
			return 0, fmt.Errorf("optimizer: dimension %d index %d out of range [0,%d)", i, idx, ps.sizes[i])
		}
		p += idx * ps.weights[i]
	}
	return p, nil
}

// Values decodes position p directly into concrete parameter values,
// keyed by (strategy index, parameter name).
func (ps *ParameterSpace) Values(p int) ([]ParamValue, error) {
	tuple, err := ps.Decode(p)
	if err != nil {
		return nil, err
	}
	out := make([]ParamValue, len(ps.Dims))
	for i, d := range ps.Dims {
		out[i] = ParamValue{StrategyIndex: d.StrategyIndex, ParamName: d.ParamName, Value: d.Range.ValueAt(tuple[i])}
	}
	return out, nil
}

// ParamValue is one concrete parameter assignment decoded from a
// ParameterSpace position.
type ParamValue struct {
	StrategyIndex int
	ParamName     string
	Value         float64
}
