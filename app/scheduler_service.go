package app

import (
	"context"
	"fmt"
	"time"

	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/internal"
	"gobandits/internal/errors"
	"gobandits/internal/thompson"
	"gobandits/ports"
)

// SchedulerService picks scripts by Thompson sampling, runs them and folds the
// outcomes back into the roster.
type SchedulerService struct {
	runner  ports.ScriptRunner
	rngPort ports.RNGPort
	journal ports.RunJournal
	sampler thompson.Sampler
	logger  *internal.Logger
}

// SchedulerOption configures a SchedulerService
type SchedulerOption func(*SchedulerService)

// WithJournal records every step through journal
func WithJournal(journal ports.RunJournal) SchedulerOption {
	return func(s *SchedulerService) { s.journal = journal }
}

// WithLogger replaces the default logger
func WithLogger(logger *internal.Logger) SchedulerOption {
	return func(s *SchedulerService) { s.logger = logger }
}

// WithSampler sets the posterior sampler used for selection
func WithSampler(sampler thompson.Sampler) SchedulerOption {
	return func(s *SchedulerService) { s.sampler = sampler }
}

// NewSchedulerService creates a scheduler service
func NewSchedulerService(runner ports.ScriptRunner, rngPort ports.RNGPort, opts ...SchedulerOption) *SchedulerService {
	s := &SchedulerService{
		runner:  runner,
		rngPort: rngPort,
		logger:  internal.DefaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunRequest defines the inputs of a scheduling run
type RunRequest struct {
	Source ports.RosterRepository
	Output ports.RosterRepository
	Steps  int
	Mode   thompson.Mode
	Seed   int64
	RunID  core.RunID // optional, will be generated if empty
}

// StepResult describes one executed step
type StepResult struct {
	RunID   core.RunID   `json:"run_id"`
	Step    int          `json:"step"`
	Index   int          `json:"index"`
	Script  core.ArmName `json:"script"`
	Outcome arms.Outcome `json:"outcome"`
}

// RunResult contains the complete output of a scheduling run
type RunResult struct {
	RunID  core.RunID   `json:"run_id"`
	Steps  []StepResult `json:"steps"`
	Roster *arms.Roster `json:"roster"`
	// Exhausted is set when the run stopped early because no script was eligible.
	Exhausted bool  `json:"exhausted"`
	RuntimeMs int64 `json:"runtime_ms"`
}

// Sampler returns the posterior sampler the service selects with
func (s *SchedulerService) Sampler() thompson.Sampler { return s.sampler }

// Choose returns the roster index of the script to run next. Only eligible
// scripts take part; ok is false when none is left.
func (s *SchedulerService) Choose(roster *arms.Roster, mode thompson.Mode, src ports.UniformSource) (int, bool, error) {
	cands, index := roster.Candidates(arms.Eligible)
	best, ok, err := thompson.NewSelector(mode, thompson.WithSampler(s.sampler)).SelectBest(cands, src)
	if err != nil {
		return -1, false, err
	}
	if !ok {
		return -1, false, nil
	}
	return index[best], true, nil
}

// Step chooses one script, runs it and records the outcome in roster.
func (s *SchedulerService) Step(ctx context.Context, runID core.RunID, step int, roster *arms.Roster, mode thompson.Mode, src ports.UniformSource) (StepResult, bool, error) {
	idx, ok, err := s.Choose(roster, mode, src)
	if err != nil || !ok {
		return StepResult{}, ok, err
	}

	script := &roster.Scripts[idx]
	log := s.logger.With("run_id", runID, "step", step, "script", script.Name)
	log.Debug("selected %q (%d/%d interesting/uninteresting, runtime %s)",
		script.Command, script.Results.Interesting, script.Results.Uninteresting, script.AvgRuntimeMs)

	outcome, err := s.runner.Run(ctx, *script)
	if err != nil {
		return StepResult{}, true, errors.Wrapf(err, "step %d", step)
	}
	script.Record(outcome)

	switch {
	case outcome.Interesting > 0:
		log.Warn("exit status %d, logging as interesting", outcome.ExitCode)
	case !outcome.Classified():
		log.Info("unrecognized exit status %d, recording runtime only", outcome.ExitCode)
	default:
		log.Trace("uninteresting in %s", outcome.Duration)
	}

	result := StepResult{
		RunID:   runID,
		Step:    step,
		Index:   idx,
		Script:  script.Name,
		Outcome: outcome,
	}
	if s.journal != nil {
		if err := s.journal.Append(ctx, arms.StepRecord{RunID: runID, Step: step, Script: script.Name, Outcome: outcome}); err != nil {
			return result, true, errors.Wrapf(err, "step %d", step)
		}
	}
	return result, true, nil
}

// Run loads the roster, performs up to req.Steps steps and saves the result to
// req.Output. A cancelled context stops the run after saving the steps taken so far.
func (s *SchedulerService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	startTime := time.Now()

	if req.Steps < 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("steps must not be negative, got %d", req.Steps))
	}
	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	log := s.logger.With("run_id", runID)

	roster, err := req.Source.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load roster")
	}

	src, err := s.rngPort.SeededStream(ctx, "schedule", req.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to seed scheduler")
	}

	log.Info("starting %d steps over %d scripts (%s, seed %d)", req.Steps, len(roster.Scripts), req.Mode, req.Seed)

	result := &RunResult{RunID: runID, Steps: make([]StepResult, 0, req.Steps), Roster: roster}
	var runErr error
	for step := 0; step < req.Steps; step++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res, ok, err := s.Step(ctx, runID, step, roster, req.Mode, src)
		if err != nil {
			// a journal failure comes after the outcome was recorded
			if res.Script != "" {
				result.Steps = append(result.Steps, res)
			}
			runErr = err
			break
		}
		if !ok {
			log.Info("no eligible scripts left after %d steps", step)
			result.Exhausted = true
			break
		}
		result.Steps = append(result.Steps, res)
	}

	// progress made before a failure is kept
	if err := req.Output.Save(context.WithoutCancel(ctx), roster); err != nil {
		return nil, errors.Wrap(err, "failed to save roster")
	}
	result.RuntimeMs = time.Since(startTime).Milliseconds()

	if runErr != nil {
		log.Error("run stopped after %d steps: %v", len(result.Steps), runErr)
		return result, runErr
	}
	log.Info("completed %d steps in %dms", len(result.Steps), result.RuntimeMs)
	return result, nil
}

// Reset clears one script by name, or every script when name is empty.
func (s *SchedulerService) Reset(roster *arms.Roster, name core.ArmName) error {
	if name == "" {
		for i := range roster.Scripts {
			roster.Scripts[i].Reset()
		}
		return nil
	}
	idx, err := roster.Find(name)
	if err != nil {
		return err
	}
	roster.Scripts[idx].Reset()
	return nil
}

// Create builds a fresh roster from name=command mappings and saves it.
func (s *SchedulerService) Create(ctx context.Context, repo ports.RosterRepository, mappings []arms.Mapping) (*arms.Roster, error) {
	roster, err := arms.NewRoster(mappings)
	if err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, roster); err != nil {
		return nil, errors.Wrap(err, "failed to save roster")
	}
	return roster, nil
}
