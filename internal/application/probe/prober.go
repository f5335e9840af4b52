// Package probe looks for the same Safe address on every registry chain.
package probe

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// StateFetcher reads a Safe on one chain.
type StateFetcher interface {
	Fetch(ctx context.Context, desc chain.Descriptor, address common.Address) (*safe.State, error)
}

// Prober fans a fetch out to every chain of the registry.
type Prober struct {
	registry    *chain.Registry
	fetcher     StateFetcher
	concurrency int
	logger      *zap.Logger
}

// New creates a prober. concurrency <= 0 uses the default.
func New(registry *chain.Registry, fetcher StateFetcher, concurrency int, logger *zap.Logger) *Prober {
	if concurrency <= 0 {
		concurrency = constants.DefaultProbeConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		registry:    registry,
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Probe fetches address on every chain and never fails: a chain that cannot
// be read is recorded as absent with the reason. States in known are reused
// instead of fetched again.
func (p *Prober) Probe(ctx context.Context, address common.Address, known map[uint64]*safe.State) safe.DeploymentMap {
	chains := p.registry.All()
	states := make([]*safe.State, len(chains))
	reasons := make([]string, len(chains))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, desc := range chains {
		if st, ok := known[desc.ID]; ok && st != nil {
			states[i] = st
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reasons[i] = reasonFor(ctx, err)
				return nil
			}
			st, err := p.fetcher.Fetch(ctx, desc, address)
			if err != nil {
				reasons[i] = reasonFor(ctx, err)
				p.logger.Debug("chain probe found no safe",
					zap.String("chain", desc.Slug),
					zap.String("address", address.Hex()),
					zap.String("reason", reasons[i]),
					zap.Error(err))
				return nil
			}
			states[i] = st
			return nil
		})
	}
	_ = g.Wait()

	m := safe.NewDeploymentMap(chains, states, reasons)
	p.logger.Info("cross-chain probe complete",
		zap.String("address", address.Hex()),
		zap.Int("chains", len(chains)),
		zap.Int("deployments", m.TotalDeployments),
		zap.Bool("multi_chain", m.MultiChain))
	return m
}

// reasonFor labels a failed chain. Only the probe's own deadline counts as a
// timeout; a per-call timeout inside the fetch is a network error.
func reasonFor(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "probe timed out"
	case errors.Is(err, domainerrors.ErrNotASafe), errors.Is(err, domainerrors.ErrMalformed):
		return "not deployed"
	case errors.Is(err, domainerrors.ErrNetwork):
		return "network error: " + err.Error()
	default:
		return "error: " + err.Error()
	}
}
