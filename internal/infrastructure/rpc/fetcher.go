package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

var sentinel = common.HexToAddress(constants.SentinelAddress)

// auxConcurrency bounds parallel per-owner and per-module lookups.
const auxConcurrency = 8

// Fetcher reads Safe state from chain RPC endpoints.
type Fetcher struct {
	pool     *Pool
	pageSize int
	logger   *zap.Logger
}

// NewFetcher creates a fetcher backed by pool.
func NewFetcher(pool *Pool) *Fetcher {
	return &Fetcher{
		pool:     pool,
		pageSize: pool.opts.PageSize,
		logger:   pool.opts.Logger,
	}
}

// Fetch reads the Safe at address on desc. Every read is pinned to the head
// block observed at the start so the snapshot is consistent.
//
// It fails with ErrNotASafe when the address holds no code or the Safe view
// functions revert or decode badly, and with ErrNetwork when the endpoint
// cannot answer within the retry policy.
func (f *Fetcher) Fetch(ctx context.Context, desc chain.Descriptor, address common.Address) (*safe.State, error) {
	c, err := f.pool.Chain(ctx, desc)
	if err != nil {
		return nil, err
	}

	head, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	block := new(big.Int).SetUint64(head)

	code, err := c.CodeAt(ctx, address, block)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, domainerrors.Wrap(desc.ID, "eth_getCode", fmt.Errorf("%w: no contract code at %s", domainerrors.ErrNotASafe, address.Hex()))
	}

	state := &safe.State{
		Address:     address,
		ChainID:     desc.ID,
		BlockNumber: head,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := f.callSafe(gctx, c, address, block, "VERSION")
		if err != nil {
			return err
		}
		v, ok := out[0].(string)
		if !ok {
			return malformed(desc.ID, "VERSION", "unexpected type %T", out[0])
		}
		state.Version = v
		return nil
	})
	g.Go(func() error {
		out, err := f.callSafe(gctx, c, address, block, "getThreshold")
		if err != nil {
			return err
		}
		t, err := toUint64(desc.ID, "getThreshold", out[0])
		if err != nil {
			return err
		}
		state.Threshold = t
		return nil
	})
	g.Go(func() error {
		out, err := f.callSafe(gctx, c, address, block, "getOwners")
		if err != nil {
			return err
		}
		owners, ok := out[0].([]common.Address)
		if !ok {
			return malformed(desc.ID, "getOwners", "unexpected type %T", out[0])
		}
		state.Owners = owners
		return nil
	})
	g.Go(func() error {
		out, err := f.callSafe(gctx, c, address, block, "nonce")
		if err != nil {
			return err
		}
		n, err := toUint64(desc.ID, "nonce", out[0])
		if err != nil {
			return err
		}
		state.Nonce = n
		return nil
	})
	g.Go(func() error {
		word, err := c.StorageAt(gctx, address, GuardStorageSlot, block)
		if err != nil {
			return err
		}
		state.Guard = safe.NonZero(addressFromWord(word))
		return nil
	})
	g.Go(func() error {
		word, err := c.StorageAt(gctx, address, FallbackHandlerStorageSlot, block)
		if err != nil {
			return err
		}
		state.FallbackHandler = safe.NonZero(addressFromWord(word))
		return nil
	})
	g.Go(func() error {
		modules, err := f.modules(gctx, c, address, block)
		if err != nil {
			return err
		}
		state.Modules = modules
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := state.Validate(); err != nil {
		return nil, domainerrors.Wrap(desc.ID, "validate", err)
	}

	f.logger.Debug("fetched safe state",
		zap.Uint64("chain_id", desc.ID),
		zap.String("address", address.Hex()),
		zap.Uint64("block", head),
		zap.String("version", state.Version),
		zap.Int("owners", len(state.Owners)),
		zap.Int("modules", len(state.Modules)))
	return state, nil
}

// modules walks the Safe's linked module list page by page.
//
// 1.4.x returns the last element of the page as next; 1.3.0 returns the first
// element not included in the page, which would otherwise be skipped. Both
// are handled by appending next when it is not already the page tail.
func (f *Fetcher) modules(ctx context.Context, c *Chain, address common.Address, block *big.Int) ([]common.Address, error) {
	chainID := c.Descriptor().ID
	pageSize := big.NewInt(int64(f.pageSize))

	modules := []common.Address{}
	seen := make(map[common.Address]struct{})
	add := func(m common.Address) error {
		if _, dup := seen[m]; dup {
			return malformed(chainID, "getModulesPaginated", "module %s listed twice", m.Hex())
		}
		seen[m] = struct{}{}
		modules = append(modules, m)
		return nil
	}

	start := sentinel
	for page := 0; page < constants.MaxModulePages; page++ {
		out, err := f.callSafe(ctx, c, address, block, "getModulesPaginated", start, pageSize)
		if err != nil {
			return nil, err
		}
		array, ok1 := out[0].([]common.Address)
		next, ok2 := out[1].(common.Address)
		if !ok1 || !ok2 {
			return nil, malformed(chainID, "getModulesPaginated", "unexpected types %T, %T", out[0], out[1])
		}

		for _, m := range array {
			if err := add(m); err != nil {
				return nil, err
			}
		}

		if next == sentinel || next == (common.Address{}) {
			return modules, nil
		}
		if len(array) == 0 || array[len(array)-1] != next {
			if err := add(next); err != nil {
				return nil, err
			}
		}
		if len(array) < f.pageSize {
			return modules, nil
		}
		start = next
	}
	return nil, malformed(chainID, "getModulesPaginated", "more than %d pages", constants.MaxModulePages)
}

// callSafe packs, calls and unpacks a Safe view function. Empty or
// undecodable return data means the contract is not a Safe.
func (f *Fetcher) callSafe(ctx context.Context, c *Chain, address common.Address, block *big.Int, method string, args ...any) ([]any, error) {
	chainID := c.Descriptor().ID
	data, err := SafeABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.Call(ctx, address, data, block)
	if err != nil {
		return nil, err
	}
	out, err := SafeABI.Unpack(method, raw)
	if err != nil {
		return nil, domainerrors.Wrap(chainID, method, fmt.Errorf("%w: decode: %v", domainerrors.ErrNotASafe, err))
	}
	if len(out) == 0 {
		return nil, domainerrors.Wrap(chainID, method, fmt.Errorf("%w: empty return data", domainerrors.ErrNotASafe))
	}
	return out, nil
}

// OwnerKinds reports for each owner whether it holds contract code at
// block (0 reads the latest block).
func (f *Fetcher) OwnerKinds(ctx context.Context, desc chain.Descriptor, owners []common.Address, block uint64) (map[common.Address]bool, error) {
	c, err := f.pool.Chain(ctx, desc)
	if err != nil {
		return nil, err
	}

	at := blockArg(block)
	kinds := make(map[common.Address]bool, len(owners))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(auxConcurrency)
	for _, owner := range owners {
		g.Go(func() error {
			code, err := c.CodeAt(gctx, owner, at)
			if err != nil {
				return err
			}
			mu.Lock()
			kinds[owner] = len(code) > 0
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return kinds, nil
}

// RecoveryThresholds calls threshold() on every module at block. Modules
// that revert or return nothing decodable are not recovery modules and are
// left out.
func (f *Fetcher) RecoveryThresholds(ctx context.Context, desc chain.Descriptor, modules []common.Address, block uint64) (map[common.Address]uint64, error) {
	c, err := f.pool.Chain(ctx, desc)
	if err != nil {
		return nil, err
	}
	data, err := RecoveryABI.Pack("threshold")
	if err != nil {
		return nil, fmt.Errorf("pack threshold: %w", err)
	}

	at := blockArg(block)
	thresholds := make(map[common.Address]uint64)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(auxConcurrency)
	for _, module := range modules {
		g.Go(func() error {
			raw, err := c.Call(gctx, module, data, at)
			if errors.Is(err, domainerrors.ErrNotASafe) {
				return nil
			}
			if err != nil {
				return err
			}
			out, err := RecoveryABI.Unpack("threshold", raw)
			if err != nil || len(out) == 0 {
				return nil
			}
			t, ok := out[0].(*big.Int)
			if !ok || !t.IsUint64() {
				return nil
			}
			mu.Lock()
			thresholds[module] = t.Uint64()
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return thresholds, nil
}

func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}

func toUint64(chainID uint64, method string, v any) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, malformed(chainID, method, "unexpected type %T", v)
	}
	if !n.IsUint64() {
		return 0, malformed(chainID, method, "value %s out of range", n)
	}
	return n.Uint64(), nil
}

func malformed(chainID uint64, op, format string, args ...any) error {
	return domainerrors.Wrap(chainID, op, fmt.Errorf("%w: %s", domainerrors.ErrMalformed, fmt.Sprintf(format, args...)))
}
