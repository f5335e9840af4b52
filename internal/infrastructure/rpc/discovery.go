package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// Head returns the latest block number of desc.
func (f *Fetcher) Head(ctx context.Context, desc chain.Descriptor) (uint64, error) {
	c, err := f.pool.Chain(ctx, desc)
	if err != nil {
		return 0, err
	}
	return c.BlockNumber(ctx)
}

// ProxyCreations returns the proxies created by the chain's Safe factory
// between from and to (inclusive), in log order.
func (f *Fetcher) ProxyCreations(ctx context.Context, desc chain.Descriptor, from, to uint64) ([]common.Address, error) {
	c, err := f.pool.Chain(ctx, desc)
	if err != nil {
		return nil, err
	}
	logs, err := c.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{desc.Factory()},
		Topics:    [][]common.Hash{{ProxyCreationTopic}},
	})
	if err != nil {
		return nil, err
	}

	proxies := make([]common.Address, 0, len(logs))
	for _, lg := range logs {
		proxy, err := parseProxyCreation(lg)
		if err != nil {
			return nil, domainerrors.Wrap(desc.ID, "ProxyCreation", err)
		}
		proxies = append(proxies, proxy)
	}
	return proxies, nil
}

func parseProxyCreation(lg types.Log) (common.Address, error) {
	if len(lg.Topics) > 1 {
		return common.BytesToAddress(lg.Topics[1].Bytes()), nil
	}
	out, err := FactoryABI.Unpack("ProxyCreation", lg.Data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: decode ProxyCreation: %v", domainerrors.ErrMalformed, err)
	}
	proxy, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: ProxyCreation proxy has type %T", domainerrors.ErrMalformed, out[0])
	}
	return proxy, nil
}

// NativeBalance returns the native currency balance of account in wei.
func (f *Fetcher) NativeBalance(ctx context.Context, desc chain.Descriptor, account common.Address) (*big.Int, error) {
	c, err := f.pool.Chain(ctx, desc)
	if err != nil {
		return nil, err
	}
	return c.BalanceAt(ctx, account, nil)
}

// TokenBalance returns the ERC-20 balanceOf(account) in base units.
func (f *Fetcher) TokenBalance(ctx context.Context, desc chain.Descriptor, token, account common.Address) (*big.Int, error) {
	c, err := f.pool.Chain(ctx, desc)
	if err != nil {
		return nil, err
	}
	data, err := ERC20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	raw, err := c.Call(ctx, token, data, nil)
	if err != nil {
		return nil, err
	}
	out, err := ERC20ABI.Unpack("balanceOf", raw)
	if err != nil || len(out) == 0 {
		return nil, domainerrors.Wrap(desc.ID, "balanceOf", fmt.Errorf("%w: token %s", domainerrors.ErrMalformed, token.Hex()))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, domainerrors.Wrap(desc.ID, "balanceOf", fmt.Errorf("%w: unexpected type %T", domainerrors.ErrMalformed, out[0]))
	}
	return balance, nil
}
