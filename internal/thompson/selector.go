package thompson

import (
	"errors"
	"fmt"
	"sort"

	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/ports"
)

// Mode chooses the score transform applied to each posterior sample.
type Mode int

const (
	// ModeRuntimeAware applies SkewedScore: unknown runtimes first, then speed-weighted samples.
	ModeRuntimeAware Mode = iota
	// ModeIgnoreRuntime applies PlainScore.
	ModeIgnoreRuntime
)

func (m Mode) String() string {
	switch m {
	case ModeRuntimeAware:
		return "runtime-aware"
	case ModeIgnoreRuntime:
		return "ignore-runtime"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ModeFor maps the CLI/API "ignore runtime" switch onto a Mode.
func ModeFor(ignoreRuntime bool) Mode {
	if ignoreRuntime {
		return ModeIgnoreRuntime
	}
	return ModeRuntimeAware
}

// Scores holds one freshly sampled score per candidate, by candidate index.
type Scores struct {
	Values []float64
	// Approximate is set when at least one sample came from an inversion that
	// exhausted its iteration budget.
	Approximate bool
}

// Selector draws one posterior sample per candidate per call and orders the
// candidates by the transformed scores. It holds no mutable state; concurrent
// use is safe as long as each caller brings its own random source.
type Selector struct {
	mode    Mode
	sampler Sampler
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithSampler sets the posterior sampler, for a non-default inversion budget.
func WithSampler(sampler Sampler) SelectorOption {
	return func(s *Selector) {
		s.sampler = sampler
	}
}

// NewSelector creates a selector using the given score transform.
func NewSelector(mode Mode, opts ...SelectorOption) *Selector {
	s := &Selector{mode: mode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the selector's score transform.
func (s *Selector) Mode() Mode { return s.mode }

// Score samples every candidate once, in index order, taking one draw from src each.
// Inputs are validated before any draw is taken.
func (s *Selector) Score(cands []arms.Candidate, src ports.UniformSource) (Scores, error) {
	if err := s.validate(cands); err != nil {
		return Scores{}, err
	}

	out := Scores{Values: make([]float64, len(cands))}
	for i, c := range cands {
		raw, err := s.sampler.Draw(c.Stats, src)
		if err != nil {
			if !errors.Is(err, core.ErrNonconvergence) {
				return Scores{}, fmt.Errorf("arm %d: %w", i, err)
			}
			out.Approximate = true
		}

		var score float64
		switch s.mode {
		case ModeIgnoreRuntime:
			score, err = PlainScore(raw, c.Bias)
		default:
			score, err = SkewedScore(raw, c.Runtime, c.Bias)
		}
		if err != nil {
			return Scores{}, fmt.Errorf("arm %d: %w", i, err)
		}
		out.Values[i] = score
	}
	return out, nil
}

// SelectBest returns the index of the highest-scoring candidate. Ties go to
// the lowest index. An empty input is not an error: ok is false.
func (s *Selector) SelectBest(cands []arms.Candidate, src ports.UniformSource) (int, bool, error) {
	if len(cands) == 0 {
		return -1, false, nil
	}
	scores, err := s.Score(cands, src)
	if err != nil {
		return -1, false, err
	}
	best, ok := Best(scores.Values)
	return best, ok, nil
}

// Rank returns every candidate index ordered best to worst. Equal scores keep
// their original index order.
func (s *Selector) Rank(cands []arms.Candidate, src ports.UniformSource) ([]int, error) {
	if len(cands) == 0 {
		return []int{}, nil
	}
	scores, err := s.Score(cands, src)
	if err != nil {
		return nil, err
	}
	return Order(scores.Values), nil
}

func (s *Selector) validate(cands []arms.Candidate) error {
	for i, c := range cands {
		if err := ValidateBias(c.Bias); err != nil {
			return fmt.Errorf("arm %d: %w", i, err)
		}
		if s.mode == ModeIgnoreRuntime {
			continue
		}
		if ms, known := c.Runtime.Get(); known {
			if err := ValidateRuntime(ms); err != nil {
				return fmt.Errorf("arm %d: %w", i, err)
			}
		}
	}
	return nil
}

// Best returns the index of the strict maximum of scores, first wins on ties.
func Best(scores []float64) (int, bool) {
	best := -1
	bestScore := -1.0
	for i, v := range scores {
		if v > bestScore {
			best = i
			bestScore = v
		}
	}
	return best, best >= 0
}

// Order returns the indices of scores sorted descending, stable on ties.
func Order(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}
