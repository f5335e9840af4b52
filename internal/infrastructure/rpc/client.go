package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// ChainReader is the subset of an Ethereum JSON-RPC client used here.
// *ethclient.Client satisfies it.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Dialer opens a ChainReader for an endpoint URL.
type Dialer func(ctx context.Context, endpoint string) (ChainReader, error)

// DialEthclient is the production Dialer.
func DialEthclient(ctx context.Context, endpoint string) (ChainReader, error) {
	return ethclient.DialContext(ctx, endpoint)
}

// Options configures a Pool.
type Options struct {
	Dialer      Dialer
	RateLimit   float64       // requests per second per endpoint
	Retries     uint64        // retries for transient failures
	RetryBase   time.Duration // first backoff delay
	CallTimeout time.Duration // timeout for a single attempt
	PageSize    int           // getModulesPaginated page size
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		o.Dialer = DialEthclient
	}
	if o.RateLimit <= 0 {
		o.RateLimit = constants.DefaultRPCRate
	}
	if o.RetryBase <= 0 {
		o.RetryBase = constants.DefaultRetryBase
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = constants.DefaultCallTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = constants.ModulePageSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Pool hands out one rate-limited connection per chain, dialed lazily.
type Pool struct {
	opts  Options
	mu    sync.Mutex
	conns map[uint64]*Chain
}

// NewPool creates a connection pool.
func NewPool(opts Options) *Pool {
	return &Pool{
		opts:  opts.withDefaults(),
		conns: make(map[uint64]*Chain),
	}
}

// Chain returns the connection for desc, dialing it on first use.
func (p *Pool) Chain(ctx context.Context, desc chain.Descriptor) (*Chain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[desc.ID]; ok {
		return c, nil
	}
	reader, err := p.opts.Dialer(ctx, desc.RPCEndpoint)
	if err != nil {
		return nil, domainerrors.Wrap(desc.ID, "dial", fmt.Errorf("%w: %w", domainerrors.ErrNetwork, err))
	}
	burst := int(p.opts.RateLimit)
	if burst < 1 {
		burst = 1
	}
	c := &Chain{
		desc:    desc,
		reader:  reader,
		limiter: rate.NewLimiter(rate.Limit(p.opts.RateLimit), burst),
		opts:    p.opts,
	}
	p.conns[desc.ID] = c
	return c, nil
}

// Close releases every dialed connection that supports closing.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.conns {
		if closer, ok := c.reader.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(p.conns, id)
	}
}

// Chain wraps a ChainReader with rate limiting, per-attempt timeouts,
// retries on transient failures and error classification.
type Chain struct {
	desc    chain.Descriptor
	reader  ChainReader
	limiter *rate.Limiter
	opts    Options
}

// Descriptor returns the chain this connection talks to.
func (c *Chain) Descriptor() chain.Descriptor {
	return c.desc
}

// do runs fn under the retry policy. Errors come back classified as
// ErrNetwork or ErrNotASafe and wrapped with the chain id and op.
func (c *Chain) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(c.opts.Retries, retry.NewExponential(c.opts.RetryBase))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && IsTransient(err) {
			c.opts.Logger.Debug("retrying rpc call",
				zap.Uint64("chain_id", c.desc.ID),
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	return domainerrors.Wrap(c.desc.ID, op, classify(err))
}

// BlockNumber returns the current head block.
func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	var block uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		block, err = c.reader.BlockNumber(ctx)
		return err
	})
	return block, err
}

// CodeAt returns the code deployed at account.
func (c *Chain) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	var code []byte
	err := c.do(ctx, "eth_getCode", func(ctx context.Context) error {
		var err error
		code, err = c.reader.CodeAt(ctx, account, block)
		return err
	})
	return code, err
}

// Call executes a read-only contract call.
func (c *Chain) Call(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	var out []byte
	msg := ethereum.CallMsg{To: &to, Data: data}
	err := c.do(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.reader.CallContract(ctx, msg, block)
		return err
	})
	return out, err
}

// StorageAt reads a storage slot.
func (c *Chain) StorageAt(ctx context.Context, account common.Address, slot common.Hash, block *big.Int) ([]byte, error) {
	var word []byte
	err := c.do(ctx, "eth_getStorageAt", func(ctx context.Context) error {
		var err error
		word, err = c.reader.StorageAt(ctx, account, slot, block)
		return err
	})
	return word, err
}

// BalanceAt returns the native balance of account in wei.
func (c *Chain) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := c.do(ctx, "eth_getBalance", func(ctx context.Context) error {
		var err error
		balance, err = c.reader.BalanceAt(ctx, account, block)
		return err
	})
	return balance, err
}

// FilterLogs returns logs matching q.
func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.do(ctx, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.reader.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

// IsTransient reports whether err is worth retrying: timeouts, connection
// failures, HTTP 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		// -32005: limit exceeded (EIP-1474)
		return rpcErr.ErrorCode() == -32005
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "too many requests")
}

// IsRevert reports whether err is an EVM execution revert.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func classify(err error) error {
	switch {
	case errors.Is(err, domainerrors.ErrNetwork), errors.Is(err, domainerrors.ErrNotASafe):
		return err
	case IsRevert(err):
		return fmt.Errorf("%w: %w", domainerrors.ErrNotASafe, err)
	default:
		return fmt.Errorf("%w: %w", domainerrors.ErrNetwork, err)
	}
}
