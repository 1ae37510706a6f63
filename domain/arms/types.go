package arms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gobandits/domain/core"
)

// Statistics counts the outcomes observed for one arm.
type Statistics struct {
	Interesting   uint64 `json:"interesting"`
	Uninteresting uint64 `json:"uninteresting"`
}

// Alpha is the first shape parameter of the posterior Beta(interesting+1, uninteresting+1).
func (s Statistics) Alpha() float64 { return float64(s.Interesting) + 1 }

// Beta is the second shape parameter of the posterior.
func (s Statistics) Beta() float64 { return float64(s.Uninteresting) + 1 }

// PosteriorMean is the mean of the posterior, (i+1)/(i+u+2).
func (s Statistics) PosteriorMean() float64 {
	return s.Alpha() / (s.Alpha() + s.Beta())
}

// Trials is the number of classified outcomes.
func (s Statistics) Trials() uint64 { return s.Interesting + s.Uninteresting }

// Runtime is an optional mean runtime estimate in milliseconds.
// The zero value is an unknown runtime. It encodes as a JSON number or null.
type Runtime struct {
	millis float64
	known  bool
}

// UnknownRuntime is the runtime of an arm that has never completed a run.
var UnknownRuntime = Runtime{}

// RuntimeOf wraps a known runtime in milliseconds.
func RuntimeOf(millis float64) Runtime {
	return Runtime{millis: millis, known: true}
}

// Get returns the runtime in milliseconds and whether it is known.
func (r Runtime) Get() (float64, bool) { return r.millis, r.known }

// Known reports whether the runtime has been measured.
func (r Runtime) Known() bool { return r.known }

func (r Runtime) String() string {
	if !r.known {
		return "unknown"
	}
	return fmt.Sprintf("%.1fms", r.millis)
}

func (r Runtime) MarshalJSON() ([]byte, error) {
	if !r.known {
		return []byte("null"), nil
	}
	return json.Marshal(r.millis)
}

func (r *Runtime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = UnknownRuntime
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	*r = RuntimeOf(ms)
	return nil
}

// Candidate is one arm as seen by the selector for a single call.
type Candidate struct {
	Stats   Statistics
	Runtime Runtime
	Bias    float64
}

// Outcome is the result of running a script once.
type Outcome struct {
	Interesting   uint64        `json:"interesting"`
	Uninteresting uint64        `json:"uninteresting"`
	Duration      time.Duration `json:"duration_ns"`
	ExitCode      int           `json:"exit_code"`
}

// Classified reports whether the outcome counted towards the statistics.
func (o Outcome) Classified() bool { return o.Interesting+o.Uninteresting > 0 }

// Script is a roster entry: a command plus everything learned about it.
type Script struct {
	Name         core.ArmName `json:"name"`
	Command      string       `json:"command"`
	Results      Statistics   `json:"results"`
	RunCount     uint64       `json:"runcount"`
	AvgRuntimeMs Runtime      `json:"avgruntime_ms"`
	Bias         float64      `json:"bias"`
	Limit        *uint64      `json:"limit,omitempty"`
}

// NewScript returns a fresh script with bias 1 and no limit.
func NewScript(name core.ArmName, command string) Script {
	return Script{
		Name:    name,
		Command: command,
		Bias:    1,
	}
}

// Eligible reports whether the script may still be scheduled: it has no limit,
// or it has found fewer interesting cases than its limit.
func (s Script) Eligible() bool {
	return s.Limit == nil || s.Results.Interesting < *s.Limit
}

// Record folds one outcome into the statistics and the running mean runtime.
func (s *Script) Record(o Outcome) {
	s.Results.Interesting += o.Interesting
	s.Results.Uninteresting += o.Uninteresting

	prev, _ := s.AvgRuntimeMs.Get()
	total := prev * float64(s.RunCount)
	s.RunCount++
	ms := float64(o.Duration) / float64(time.Millisecond)
	s.AvgRuntimeMs = RuntimeOf((total + ms) / float64(s.RunCount))
}

// Reset clears everything learned about the script.
func (s *Script) Reset() {
	s.Results = Statistics{}
	s.RunCount = 0
	s.AvgRuntimeMs = UnknownRuntime
}

// Candidate projects the script onto the selector's view.
func (s Script) Candidate() Candidate {
	return Candidate{
		Stats:   s.Results,
		Runtime: s.AvgRuntimeMs,
		Bias:    s.Bias,
	}
}

// Roster is the ordered collection of scripts persisted between invocations.
type Roster struct {
	Scripts []Script `json:"scripts"`
}

// Mapping pairs a script name with its command line.
type Mapping struct {
	Name    core.ArmName
	Command string
}

// NewRoster builds a roster from name/command pairs.
func NewRoster(mappings []Mapping) (*Roster, error) {
	r := &Roster{Scripts: make([]Script, 0, len(mappings))}
	for _, m := range mappings {
		r.Scripts = append(r.Scripts, NewScript(m.Name, m.Command))
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks structural invariants: unique non-empty names, a command,
// and a finite non-negative bias.
func (r *Roster) Validate() error {
	seen := make(map[core.ArmName]bool, len(r.Scripts))
	for i, s := range r.Scripts {
		if s.Name == "" {
			return core.NewRosterError(fmt.Sprintf("script %d has no name", i))
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %s", core.ErrDuplicateArm, s.Name)
		}
		seen[s.Name] = true
		if s.Command == "" {
			return core.NewRosterError(fmt.Sprintf("script %s has no command", s.Name))
		}
		if math.IsNaN(s.Bias) || math.IsInf(s.Bias, 0) || s.Bias < 0 {
			return fmt.Errorf("%w: script %s has bias %v", core.ErrInvalidBias, s.Name, s.Bias)
		}
	}
	return nil
}

// Find returns the index of the named script.
func (r *Roster) Find(name core.ArmName) (int, error) {
	for i, s := range r.Scripts {
		if s.Name == name {
			return i, nil
		}
	}
	return -1, core.NewArmNotFoundError(name.String())
}

// Candidates returns the candidates for the scripts accepted by keep, and the
// roster index of each candidate. A nil keep accepts every script.
func (r *Roster) Candidates(keep func(Script) bool) ([]Candidate, []int) {
	cands := make([]Candidate, 0, len(r.Scripts))
	index := make([]int, 0, len(r.Scripts))
	for i, s := range r.Scripts {
		if keep != nil && !keep(s) {
			continue
		}
		cands = append(cands, s.Candidate())
		index = append(index, i)
	}
	return cands, index
}

// Eligible is a Candidates filter selecting scripts below their limit.
func Eligible(s Script) bool { return s.Eligible() }

// StepRecord is one scheduler step: which script ran and how it ended.
type StepRecord struct {
	RunID   core.RunID
	Step    int
	Script  core.ArmName
	Outcome Outcome
}
