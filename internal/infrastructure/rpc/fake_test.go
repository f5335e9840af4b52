package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// fakeSafe is an in-memory Safe answered through the real ABI codec.
type fakeSafe struct {
	version   string
	threshold uint64
	owners    []common.Address
	nonce     uint64
	modules   []common.Address
	guard     common.Address
	handler   common.Address
	// legacyPaging mimics 1.3.0, where next is the first module not returned.
	legacyPaging bool
}

type fakeReader struct {
	mu        sync.Mutex
	head      uint64
	safes     map[common.Address]*fakeSafe
	contracts map[common.Address]bool
	recovery  map[common.Address]uint64
	balances  map[common.Address]*big.Int
	logs      []types.Log

	// transient failures injected before any call succeeds
	transient int
	calls     map[string]int
	blocks    []uint64
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		head:      19_000_000,
		safes:     make(map[common.Address]*fakeSafe),
		contracts: make(map[common.Address]bool),
		recovery:  make(map[common.Address]uint64),
		balances:  make(map[common.Address]*big.Int),
		calls:     make(map[string]int),
	}
}

func (f *fakeReader) record(op string, block *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if block != nil {
		f.blocks = append(f.blocks, block.Uint64())
	}
	if f.transient > 0 {
		f.transient--
		return gethrpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
	}
	return nil
}

func (f *fakeReader) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	if err := f.record("blockNumber", nil); err != nil {
		return 0, err
	}
	return f.head, nil
}

func (f *fakeReader) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	if err := f.record("getCode", block); err != nil {
		return nil, err
	}
	if _, ok := f.safes[account]; ok || f.contracts[account] {
		return []byte{0x60, 0x80, 0x60, 0x40}, nil
	}
	if _, ok := f.recovery[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (f *fakeReader) StorageAt(ctx context.Context, account common.Address, key common.Hash, block *big.Int) ([]byte, error) {
	if err := f.record("getStorageAt", block); err != nil {
		return nil, err
	}
	s, ok := f.safes[account]
	if !ok {
		return make([]byte, 32), nil
	}
	switch key {
	case GuardStorageSlot:
		return common.LeftPadBytes(s.guard.Bytes(), 32), nil
	case FallbackHandlerStorageSlot:
		return common.LeftPadBytes(s.handler.Bytes(), 32), nil
	}
	return make([]byte, 32), nil
}

func (f *fakeReader) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	if err := f.record("getBalance", block); err != nil {
		return nil, err
	}
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeReader) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := f.record("getLogs", nil); err != nil {
		return nil, err
	}
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= q.FromBlock.Uint64() && lg.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeReader) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := f.record("call", block); err != nil {
		return nil, err
	}
	to := *msg.To

	if t, ok := f.recovery[to]; ok {
		return RecoveryABI.Methods["threshold"].Outputs.Pack(new(big.Int).SetUint64(t))
	}
	s, ok := f.safes[to]
	if !ok {
		if f.contracts[to] {
			return nil, errors.New("execution reverted")
		}
		return nil, nil
	}

	method, err := SafeABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, errors.New("execution reverted")
	}
	f.mu.Lock()
	f.calls[method.Name]++
	f.mu.Unlock()

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("fake: unpack %s: %w", method.Name, err)
	}

	switch method.Name {
	case "VERSION":
		return method.Outputs.Pack(s.version)
	case "getThreshold":
		return method.Outputs.Pack(new(big.Int).SetUint64(s.threshold))
	case "getOwners":
		return method.Outputs.Pack(s.owners)
	case "nonce":
		return method.Outputs.Pack(new(big.Int).SetUint64(s.nonce))
	case "getModulesPaginated":
		page, next := s.page(args[0].(common.Address), int(args[1].(*big.Int).Int64()))
		return method.Outputs.Pack(page, next)
	}
	return nil, errors.New("execution reverted")
}

func (s *fakeSafe) page(start common.Address, size int) ([]common.Address, common.Address) {
	idx := 0
	if start != sentinel {
		for i, m := range s.modules {
			if m == start {
				idx = i + 1
				break
			}
		}
	}
	end := idx + size
	if end >= len(s.modules) {
		return append([]common.Address{}, s.modules[idx:]...), sentinel
	}
	page := append([]common.Address{}, s.modules[idx:end]...)
	if s.legacyPaging {
		return page, s.modules[end]
	}
	return page, page[len(page)-1]
}

func addr(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(n)))
}

func addrs(from, count int) []common.Address {
	out := make([]common.Address, count)
	for i := range out {
		out[i] = addr(from + i)
	}
	return out
}
