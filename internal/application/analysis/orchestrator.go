package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/check"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// Fetcher reads Safe state and the chain facts the rules need.
type Fetcher interface {
	Fetch(ctx context.Context, desc chain.Descriptor, address common.Address) (*safe.State, error)
	OwnerKinds(ctx context.Context, desc chain.Descriptor, owners []common.Address, block uint64) (map[common.Address]bool, error)
	RecoveryThresholds(ctx context.Context, desc chain.Descriptor, modules []common.Address, block uint64) (map[common.Address]uint64, error)
}

// Explorer supplies timestamps and owner activity.
type Explorer interface {
	Enabled() bool
	CreationTime(ctx context.Context, desc chain.Descriptor, address common.Address) (*time.Time, error)
	LastTxTime(ctx context.Context, desc chain.Descriptor, address common.Address) (*time.Time, error)
	OwnerActivity(ctx context.Context, desc chain.Descriptor, safeAddr common.Address, owners []common.Address) (map[common.Address]int, error)
}

// ReleaseSource lists published Safe versions.
type ReleaseSource interface {
	Latest(ctx context.Context) ([]safe.Release, error)
}

// Prober looks for the Safe on every registry chain.
type Prober interface {
	Probe(ctx context.Context, address common.Address, known map[uint64]*safe.State) safe.DeploymentMap
}

// Options controls a single analysis.
type Options struct {
	ProbeMultiChain bool
	Timeout         time.Duration
}

// Report is the complete result of analysing one Safe.
type Report struct {
	Address     common.Address      `json:"address"`
	ChainID     uint64              `json:"chain_id"`
	ChainName   string              `json:"chain_name"`
	ExplorerURL string              `json:"explorer_url,omitempty"`
	State       *safe.State         `json:"safe"`
	Checks      []check.Result      `json:"checks"`
	Score       check.Score         `json:"score"`
	Deployments *safe.DeploymentMap `json:"deployments,omitempty"`
	Unavailable []string            `json:"unavailable,omitempty"`
	AnalyzedAt  time.Time           `json:"analyzed_at"`
}

// Orchestrator coordinates one analysis across the fetcher, the auxiliary
// sources, the prober, the evaluator and the aggregator.
type Orchestrator struct {
	registry *chain.Registry
	fetcher  Fetcher
	explorer Explorer
	releases ReleaseSource
	prober   Prober
	handlers check.FallbackRegistry
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new analysis orchestrator. explorer, releases
// and prober may be nil; the rules depending on them then report unknown.
func NewOrchestrator(
	registry *chain.Registry,
	fetcher Fetcher,
	explorer Explorer,
	releases ReleaseSource,
	prober Prober,
	handlers check.FallbackRegistry,
	logger *zap.Logger,
) *Orchestrator {
	if handlers == nil {
		handlers = check.DefaultFallbackRegistry(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		fetcher:  fetcher,
		explorer: explorer,
		releases: releases,
		prober:   prober,
		handlers: handlers,
		logger:   logger,
		now:      time.Now,
	}
}

// Registry returns the chain registry the orchestrator validates against.
func (o *Orchestrator) Registry() *chain.Registry {
	return o.registry
}

// Analyze validates the input, fetches the Safe, gathers auxiliary data and
// evaluates every rule. Only invalid input or a failed primary fetch return
// an error; every other failure degrades the affected rules to unknown and
// is listed in Report.Unavailable.
func (o *Orchestrator) Analyze(ctx context.Context, chainID uint64, address string, opts Options) (*Report, error) {
	desc, ok := o.registry.Lookup(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", domainerrors.ErrUnsupportedChain, chainID)
	}
	addr, err := safe.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultAnalysisTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := o.now()
	fetched, err := o.fetcher.Fetch(ctx, desc, addr)
	if err != nil {
		o.logger.Warn("safe fetch failed",
			zap.String("chain", desc.Slug),
			zap.String("address", addr.Hex()),
			zap.String("category", domainerrors.Category(err)),
			zap.Error(err))
		return nil, fmt.Errorf("fetch safe %s on %s: %w", addr.Hex(), desc.Name, err)
	}

	aux, dates, notes := o.gather(ctx, desc, fetched, opts)

	state := *fetched
	state.CreatedAt = dates.created
	state.LastTxAt = dates.lastTx
	if aux.Deployments != nil {
		for i := range aux.Deployments.Deployments {
			if aux.Deployments.Deployments[i].ChainID == desc.ID {
				aux.Deployments.Deployments[i].State = &state
			}
		}
	}

	analyzedAt := o.now().UTC()
	results := check.Evaluate(check.Input{
		State:    &state,
		Aux:      aux,
		Handlers: o.handlers,
		Now:      analyzedAt,
	})
	score := check.Aggregate(results)

	report := &Report{
		Address:     addr,
		ChainID:     desc.ID,
		ChainName:   desc.Name,
		ExplorerURL: desc.ExplorerURL,
		State:       &state,
		Checks:      results,
		Score:       score,
		Deployments: aux.Deployments,
		Unavailable: notes,
		AnalyzedAt:  analyzedAt,
	}

	o.logger.Info("analysis complete",
		zap.String("chain", desc.Slug),
		zap.String("address", addr.Hex()),
		zap.Int("score", score.Score),
		zap.String("rating", string(score.Rating)),
		zap.Int("unknown", score.Unknown),
		zap.Duration("duration", o.now().Sub(started)))
	return report, nil
}

type timestamps struct {
	created *time.Time
	lastTx  *time.Time
}

// gather collects every auxiliary input concurrently. Nothing here aborts
// the analysis.
func (o *Orchestrator) gather(ctx context.Context, desc chain.Descriptor, st *safe.State, opts Options) (check.Aux, timestamps, []string) {
	var (
		aux   check.Aux
		dates timestamps
		mu    sync.Mutex
		notes []string
	)
	note := func(source string, err error) {
		mu.Lock()
		defer mu.Unlock()
		notes = append(notes, fmt.Sprintf("%s: %s", source, describe(err)))
	}

	var g errgroup.Group
	if o.explorer != nil && o.explorer.Enabled() {
		g.Go(func() error {
			created, err := o.explorer.CreationTime(ctx, desc, st.Address)
			if err != nil {
				note("creation date", err)
				return nil
			}
			dates.created = created
			return nil
		})
		g.Go(func() error {
			last, err := o.explorer.LastTxTime(ctx, desc, st.Address)
			if err != nil {
				note("last transaction", err)
				return nil
			}
			dates.lastTx = last
			return nil
		})
		g.Go(func() error {
			activity, err := o.explorer.OwnerActivity(ctx, desc, st.Address, st.Owners)
			if err != nil {
				note("owner activity", err)
				return nil
			}
			aux.OwnerActivity = activity
			return nil
		})
	} else {
		note("block explorer", domainerrors.ErrExplorerDisabled)
	}

	if o.releases != nil {
		g.Go(func() error {
			releases, err := o.releases.Latest(ctx)
			if err != nil {
				note("safe releases", err)
				return nil
			}
			aux.Releases = releases
			return nil
		})
	} else {
		note("safe releases", domainerrors.ErrMissingAuxiliaryData)
	}

	g.Go(func() error {
		kinds, err := o.fetcher.OwnerKinds(ctx, desc, st.Owners, st.BlockNumber)
		if err != nil {
			note("owner code lookup", err)
			return nil
		}
		aux.OwnerKinds = kinds
		return nil
	})

	if len(st.Modules) > 0 {
		g.Go(func() error {
			thresholds, err := o.fetcher.RecoveryThresholds(ctx, desc, st.Modules, st.BlockNumber)
			if err != nil {
				note("recovery modules", err)
				return nil
			}
			aux.RecoveryThresholds = thresholds
			return nil
		})
	} else {
		aux.RecoveryThresholds = map[common.Address]uint64{}
	}

	if opts.ProbeMultiChain && o.prober != nil {
		g.Go(func() error {
			m := o.prober.Probe(ctx, st.Address, map[uint64]*safe.State{desc.ID: st})
			aux.Deployments = &m
			return nil
		})
	}

	_ = g.Wait()
	sort.Strings(notes)
	return aux, dates, notes
}

func describe(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrExplorerDisabled):
		return "block explorer not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return err.Error()
	}
}
