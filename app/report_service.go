package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"gobandits/domain/arms"
	"gobandits/domain/core"
	"gobandits/internal"
	apperrors "gobandits/internal/errors"
	"gobandits/internal/thompson"
	"gobandits/ports"
)

// Credible interval bounds reported for every arm
const (
	LowerQuantile = 0.05
	UpperQuantile = 0.95
)

// ReportService summarizes what the scheduler has learned about a roster
type ReportService struct {
	rngPort ports.RNGPort
	logger  *internal.Logger
}

// NewReportService creates a report service
func NewReportService(rngPort ports.RNGPort, logger *internal.Logger) *ReportService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ReportService{rngPort: rngPort, logger: logger}
}

// ReportRequest defines the inputs of a summary
type ReportRequest struct {
	Roster  *arms.Roster
	Mode    thompson.Mode
	Trials  int
	Workers int
	Seed    int64
	RunID   core.RunID // optional, only used to tag log lines
	// Sampler inverts the posteriors; the zero value uses the default budget.
	Sampler thompson.Sampler
}

// ArmSummary is everything reported for one script
type ArmSummary struct {
	Name     core.ArmName    `json:"name"`
	Command  string          `json:"command"`
	Stats    arms.Statistics `json:"results"`
	RunCount uint64          `json:"runcount"`
	Runtime  arms.Runtime    `json:"avgruntime_ms"`
	Bias     float64         `json:"bias"`
	Limit    *uint64         `json:"limit,omitempty"`
	Eligible bool            `json:"eligible"`

	PosteriorMean float64 `json:"posterior_mean"`
	Lower         float64 `json:"lower"`
	Median        float64 `json:"median"`
	Upper         float64 `json:"upper"`

	FirstShare float64 `json:"first_share"`
	MeanRank   float64 `json:"mean_rank"`
	MedianRank float64 `json:"median_rank"`
	RankP90    float64 `json:"rank_p90"`
}

// Report is the outcome of a summary: per-arm posteriors plus a Monte Carlo
// ranking under the requested score transform.
type Report struct {
	RunID   core.RunID   `json:"run_id"`
	Mode    string       `json:"mode"`
	Trials  int          `json:"trials"`
	Workers int          `json:"workers"`
	Seed    int64        `json:"seed"`
	Arms    []ArmSummary `json:"arms"`
	// Order lists arm indices by first-place share, then by mean rank.
	Order []int `json:"order"`
	// Approximate is set when any inversion ran out of iterations.
	Approximate bool  `json:"approximate"`
	RuntimeMs   int64 `json:"runtime_ms"`
}

// workerTally holds one worker's share of the Monte Carlo trials
type workerTally struct {
	ranks       [][]float64
	firsts      []int
	approximate bool
}

// Summarize computes credible intervals for every arm and ranks the roster
// req.Trials times, split over req.Workers goroutines. Each worker draws from
// its own stream derived from req.Seed, and tallies are merged in worker
// order, so the report is the same for the same seed whatever the scheduling.
func (s *ReportService) Summarize(ctx context.Context, req ReportRequest) (*Report, error) {
	startTime := time.Now()

	if req.Trials <= 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("trials must be positive, got %d", req.Trials))
	}
	if req.Workers <= 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("workers must be positive, got %d", req.Workers))
	}
	workers := req.Workers
	if workers > req.Trials {
		workers = req.Trials
	}
	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}

	report := &Report{
		RunID:   runID,
		Mode:    req.Mode.String(),
		Trials:  req.Trials,
		Workers: workers,
		Seed:    req.Seed,
		Arms:    make([]ArmSummary, 0, len(req.Roster.Scripts)),
	}

	for _, script := range req.Roster.Scripts {
		summary, approximate, err := summarizeArm(script, req.Sampler)
		if err != nil {
			return nil, err
		}
		report.Approximate = report.Approximate || approximate
		report.Arms = append(report.Arms, summary)
	}

	if len(report.Arms) > 0 {
		tallies, err := s.simulate(ctx, req, workers)
		if err != nil {
			return nil, err
		}
		if err := report.merge(tallies, req.Trials); err != nil {
			return nil, err
		}
	}
	report.Order = rankOrder(report.Arms)
	report.RuntimeMs = time.Since(startTime).Milliseconds()

	s.logger.With("run_id", runID).Debug("summarized %d arms over %d trials with %d workers in %dms",
		len(report.Arms), req.Trials, workers, report.RuntimeMs)
	return report, nil
}

func summarizeArm(script arms.Script, sampler thompson.Sampler) (ArmSummary, bool, error) {
	summary := ArmSummary{
		Name:          script.Name,
		Command:       script.Command,
		Stats:         script.Results,
		RunCount:      script.RunCount,
		Runtime:       script.AvgRuntimeMs,
		Bias:          script.Bias,
		Limit:         script.Limit,
		Eligible:      script.Eligible(),
		PosteriorMean: script.Results.PosteriorMean(),
	}

	approximate := false
	targets := []*float64{&summary.Lower, &summary.Median, &summary.Upper}
	for i, p := range []float64{LowerQuantile, 0.5, UpperQuantile} {
		q, err := sampler.Quantile(script.Results, p)
		if err != nil {
			if !errors.Is(err, core.ErrNonconvergence) {
				return ArmSummary{}, false, fmt.Errorf("script %s: %w", script.Name, err)
			}
			approximate = true
		}
		*targets[i] = q
	}
	return summary, approximate, nil
}

func (s *ReportService) simulate(ctx context.Context, req ReportRequest, workers int) ([]workerTally, error) {
	cands, _ := req.Roster.Candidates(nil)
	selector := thompson.NewSelector(req.Mode, thompson.WithSampler(req.Sampler))
	tallies := make([]workerTally, workers)

	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		trials := req.Trials / workers
		if w < req.Trials%workers {
			trials++
		}

		g.Go(func() error {
			src, err := s.rngPort.Stream(gCtx, "", "rank-summary", w, req.Seed)
			if err != nil {
				return err
			}

			tally := workerTally{
				ranks:  make([][]float64, len(cands)),
				firsts: make([]int, len(cands)),
			}
			for i := range tally.ranks {
				tally.ranks[i] = make([]float64, 0, trials)
			}

			for t := 0; t < trials; t++ {
				if t%64 == 0 {
					if err := gCtx.Err(); err != nil {
						return err
					}
				}
				scores, err := selector.Score(cands, src)
				if err != nil {
					return err
				}
				tally.approximate = tally.approximate || scores.Approximate
				for rank, idx := range thompson.Order(scores.Values) {
					tally.ranks[idx] = append(tally.ranks[idx], float64(rank+1))
					if rank == 0 {
						tally.firsts[idx]++
					}
				}
			}
			tallies[w] = tally
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tallies, nil
}

func (r *Report) merge(tallies []workerTally, trials int) error {
	for i := range r.Arms {
		ranks := make(stats.Float64Data, 0, trials)
		firsts := 0
		for _, tally := range tallies {
			ranks = append(ranks, tally.ranks[i]...)
			firsts += tally.firsts[i]
			r.Approximate = r.Approximate || tally.approximate
		}

		mean, err := stats.Mean(ranks)
		if err != nil {
			return fmt.Errorf("mean rank of %s: %w", r.Arms[i].Name, err)
		}
		median, err := stats.Median(ranks)
		if err != nil {
			return fmt.Errorf("median rank of %s: %w", r.Arms[i].Name, err)
		}
		p90, err := stats.Percentile(ranks, 90)
		if err != nil {
			return fmt.Errorf("rank percentile of %s: %w", r.Arms[i].Name, err)
		}

		r.Arms[i].FirstShare = float64(firsts) / float64(trials)
		r.Arms[i].MeanRank = mean
		r.Arms[i].MedianRank = median
		r.Arms[i].RankP90 = p90
	}
	return nil
}

func rankOrder(summaries []ArmSummary) []int {
	order := make([]int, len(summaries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := summaries[order[i]], summaries[order[j]]
		if a.FirstShare != b.FirstShare {
			return a.FirstShare > b.FirstShare
		}
		return a.MeanRank < b.MeanRank
	})
	return order
}
