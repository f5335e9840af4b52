// Package discovery finds Safe proxies deployed through a chain's proxy
// factory and optionally keeps only those holding a minimum USD value.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
)

// DefaultChunkSize is used when a descriptor does not set LogChunkSize.
const DefaultChunkSize = 10_000

// DefaultPrices are the constant USD prices used for valuation.
var DefaultPrices = map[string]float64{
	"ETH":  2400,
	"WETH": 2400,
	"USDC": 1,
	"USDT": 1,
	"ARB":  0.55,
}

// Scanner is the subset of the RPC fetcher the extractor needs.
type Scanner interface {
	Head(ctx context.Context, desc chain.Descriptor) (uint64, error)
	ProxyCreations(ctx context.Context, desc chain.Descriptor, from, to uint64) ([]common.Address, error)
	NativeBalance(ctx context.Context, desc chain.Descriptor, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, desc chain.Descriptor, token, account common.Address) (*big.Int, error)
}

// Options controls one extraction run.
type Options struct {
	// FromBlock defaults to the descriptor's StartBlock.
	FromBlock uint64
	// ToBlock defaults to the chain head.
	ToBlock uint64
	// MinValueUSD enables the value filter when positive.
	MinValueUSD float64
	// Prices overrides DefaultPrices per symbol.
	Prices map[string]float64
	// Concurrency bounds parallel valuations.
	Concurrency int
	// OnChunk is called after each scanned block range.
	OnChunk func(from, to uint64, found int)
}

// Candidate is one discovered Safe.
type Candidate struct {
	Address  common.Address `json:"address"`
	ValueUSD float64        `json:"value_usd,omitempty"`
}

// Result is the outcome of an extraction run.
type Result struct {
	ChainID   uint64      `json:"chain_id"`
	FromBlock uint64      `json:"from_block"`
	ToBlock   uint64      `json:"to_block"`
	Scanned   int         `json:"scanned"`
	Safes     []Candidate `json:"safes"`
}

// Extractor scans factory logs for Safe proxies.
type Extractor struct {
	scanner Scanner
	logger  *zap.Logger
}

// New creates an extractor.
func New(scanner Scanner, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{scanner: scanner, logger: logger}
}

// Extract scans [from, to] in LogChunkSize ranges, de-duplicates the proxies
// and applies the value filter. Safes are returned sorted by address.
func (e *Extractor) Extract(ctx context.Context, desc chain.Descriptor, opts Options) (*Result, error) {
	if desc.FactoryAddress == "" {
		return nil, fmt.Errorf("chain %s has no proxy factory configured", desc.Slug)
	}

	from := opts.FromBlock
	if from == 0 {
		from = desc.StartBlock
	}
	to := opts.ToBlock
	if to == 0 {
		head, err := e.scanner.Head(ctx, desc)
		if err != nil {
			return nil, fmt.Errorf("read head of %s: %w", desc.Name, err)
		}
		to = head
	}
	if from > to {
		return nil, fmt.Errorf("start block %d is after end block %d", from, to)
	}
	chunk := desc.LogChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}

	seen := make(map[common.Address]struct{})
	for start := from; start <= to; {
		end := min(start+chunk-1, to)
		proxies, err := e.scanner.ProxyCreations(ctx, desc, start, end)
		if err != nil {
			return nil, fmt.Errorf("scan blocks %d-%d: %w", start, end, err)
		}
		for _, p := range proxies {
			seen[p] = struct{}{}
		}
		e.logger.Debug("scanned block range",
			zap.String("chain", desc.Slug),
			zap.Uint64("from", start),
			zap.Uint64("to", end),
			zap.Int("found", len(proxies)))
		if opts.OnChunk != nil {
			opts.OnChunk(start, end, len(proxies))
		}
		if end == to {
			break
		}
		start = end + 1
	}

	addrs := make([]common.Address, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0
	})

	result := &Result{ChainID: desc.ID, FromBlock: from, ToBlock: to, Scanned: len(addrs)}
	if opts.MinValueUSD <= 0 {
		result.Safes = make([]Candidate, len(addrs))
		for i, a := range addrs {
			result.Safes[i] = Candidate{Address: a}
		}
		return result, nil
	}

	safes, err := e.filterByValue(ctx, desc, addrs, opts)
	if err != nil {
		return nil, err
	}
	result.Safes = safes
	return result, nil
}

func (e *Extractor) filterByValue(ctx context.Context, desc chain.Descriptor, addrs []common.Address, opts Options) ([]Candidate, error) {
	prices := make(map[string]float64, len(DefaultPrices)+len(opts.Prices))
	for k, v := range DefaultPrices {
		prices[k] = v
	}
	for k, v := range opts.Prices {
		prices[k] = v
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	values := make([]float64, len(addrs))
	keep := make([]bool, len(addrs))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, a := range addrs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			v, err := e.valueOf(ctx, desc, a, prices)
			if err != nil {
				e.logger.Warn("valuation failed", zap.String("address", a.Hex()), zap.Error(err))
				return nil
			}
			values[i] = v
			keep[i] = v >= opts.MinValueUSD
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Valuations that failed on cancellation were only logged above.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("valuation interrupted: %w", err)
	}

	var out []Candidate
	for i, a := range addrs {
		if keep[i] {
			out = append(out, Candidate{Address: a, ValueUSD: values[i]})
		}
	}
	if out == nil {
		out = []Candidate{}
	}
	return out, nil
}

// valueOf prices the native balance and every registry token. A failing
// token read counts as zero; a failing native read fails the valuation.
func (e *Extractor) valueOf(ctx context.Context, desc chain.Descriptor, account common.Address, prices map[string]float64) (float64, error) {
	native, err := e.scanner.NativeBalance(ctx, desc, account)
	if err != nil {
		return 0, err
	}
	symbol := desc.NativeCurrencySymbol
	if symbol == "" {
		symbol = "ETH"
	}
	total := toUSD(native, 18, prices[symbol])

	for _, token := range desc.Tokens {
		price, ok := prices[token.Symbol]
		if !ok || price == 0 {
			continue
		}
		balance, err := e.scanner.TokenBalance(ctx, desc, common.HexToAddress(token.Address), account)
		if err != nil {
			e.logger.Debug("token balance failed",
				zap.String("token", token.Symbol),
				zap.String("address", account.Hex()),
				zap.Error(err))
			continue
		}
		total += toUSD(balance, token.Decimals, price)
	}
	return total, nil
}

func toUSD(amount *big.Int, decimals uint8, price float64) float64 {
	if amount == nil || amount.Sign() == 0 || price == 0 {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return units * price
}
