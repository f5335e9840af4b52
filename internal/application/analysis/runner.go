package analysis

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// Analyzer is satisfied by *Orchestrator.
type Analyzer interface {
	Analyze(ctx context.Context, chainID uint64, address string, opts Options) (*Report, error)
}

// Target is one Safe to analyse in a batch.
type Target struct {
	ChainID uint64 `json:"chain_id"`
	Address string `json:"address"`
}

// Outcome is the result of analysing one Target.
type Outcome struct {
	Target   Target  `json:"target"`
	Report   *Report `json:"report,omitempty"`
	Category string  `json:"error_category,omitempty"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration_secs"`
}

// Failed reports whether the analysis returned an error.
func (o Outcome) Failed() bool {
	return o.Report == nil
}

// OutcomeFunc is called once per finished target, from worker goroutines.
type OutcomeFunc func(index int, outcome Outcome)

// Runner analyses many Safes with a worker pool and a global rate limit.
type Runner struct {
	Concurrency int           // Maximum number of concurrent analyses
	RateLimit   int           // Analyses started per second (global)
	Timeout     time.Duration // Timeout for each analysis
}

// Run analyses every target and returns the outcomes in input order. A
// failing target is recorded in its Outcome and never stops the batch.
func (r *Runner) Run(ctx context.Context, analyzer Analyzer, targets []Target, opts Options, onDone OutcomeFunc) []Outcome {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := r.RateLimit
	if limit <= 0 {
		limit = concurrency
	}
	limiter := rate.NewLimiter(rate.Limit(limit), limit)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	outcomes := make([]Outcome, len(targets))

	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			outcome := Outcome{Target: target}

			if err := limiter.Wait(ctx); err != nil {
				outcome.Category = domainerrors.Category(err)
				outcome.Error = err.Error()
			} else {
				runOpts := opts
				if r.Timeout > 0 {
					runOpts.Timeout = r.Timeout
				}
				report, err := analyzer.Analyze(ctx, target.ChainID, target.Address, runOpts)
				if err != nil {
					outcome.Category = domainerrors.Category(err)
					outcome.Error = err.Error()
				} else {
					outcome.Report = report
				}
			}
			outcome.Duration = time.Since(start).Seconds()

			if onDone != nil {
				onDone(i, outcome)
			}
			outcomes[i] = outcome
		}()
	}

	wg.Wait()
	return outcomes
}
