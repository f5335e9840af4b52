package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

var (
	safeAddr = common.HexToAddress("0x5afe000000000000000000000000000000000001")
	ownerA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ownerB   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type fakeFetcher struct {
	mu      sync.Mutex
	states  map[uint64]*safe.State
	errs    map[uint64]error
	hang    map[uint64]bool
	fetched []uint64
}

func (f *fakeFetcher) Fetch(ctx context.Context, desc chain.Descriptor, address common.Address) (*safe.State, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, desc.ID)
	f.mu.Unlock()

	if f.hang[desc.ID] {
		<-ctx.Done()
		return nil, domainerrors.Wrap(desc.ID, "eth_call", fmt.Errorf("%w: %w", domainerrors.ErrNetwork, ctx.Err()))
	}
	if err, ok := f.errs[desc.ID]; ok {
		return nil, err
	}
	if st, ok := f.states[desc.ID]; ok {
		return st, nil
	}
	return nil, domainerrors.Wrap(desc.ID, "eth_getCode", domainerrors.ErrNotASafe)
}

func testRegistry(t *testing.T) *chain.Registry {
	t.Helper()
	reg, err := chain.New([]chain.Descriptor{
		{ID: 1, Slug: "ethereum", Name: "Ethereum", RPCEndpoint: "http://eth"},
		{ID: 10, Slug: "optimism", Name: "Optimism", RPCEndpoint: "http://op"},
		{ID: 137, Slug: "polygon", Name: "Polygon", RPCEndpoint: "http://polygon"},
		{ID: 8453, Slug: "base", Name: "Base", RPCEndpoint: "http://base"},
		{ID: 42161, Slug: "arbitrum", Name: "Arbitrum", RPCEndpoint: "http://arb"},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestProbeTwoOfFive(t *testing.T) {
	fetcher := &fakeFetcher{
		states: map[uint64]*safe.State{
			1:     {ChainID: 1, Threshold: 1, Owners: []common.Address{ownerA}},
			42161: {ChainID: 42161, Threshold: 1, Owners: []common.Address{ownerA, ownerB}},
		},
	}
	p := New(testRegistry(t), fetcher, 2, zaptest.NewLogger(t))

	m := p.Probe(context.Background(), safeAddr, nil)

	if len(m.Deployments) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(m.Deployments))
	}
	if m.TotalDeployments != 2 || !m.MultiChain {
		t.Errorf("expected 2 deployments on multiple chains, got %d (multi=%v)", m.TotalDeployments, m.MultiChain)
	}
	if !m.Reuse.Detected() || m.Reuse.Reused[0] != ownerA {
		t.Errorf("expected owner A reused, got %v", m.Reuse.Reused)
	}
	if d, _ := m.Lookup(10); d.Present() || d.Reason != "not deployed" {
		t.Errorf("unexpected optimism entry: %+v", d)
	}
}

func TestProbeIsolatesFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		states: map[uint64]*safe.State{
			1:    {ChainID: 1, Threshold: 1, Owners: []common.Address{ownerA}},
			8453: {ChainID: 8453, Threshold: 1, Owners: []common.Address{ownerB}},
		},
		errs: map[uint64]error{
			137: domainerrors.Wrap(137, "eth_blockNumber", fmt.Errorf("%w: 503", domainerrors.ErrNetwork)),
		},
	}
	p := New(testRegistry(t), fetcher, 4, zaptest.NewLogger(t))

	m := p.Probe(context.Background(), safeAddr, nil)

	if m.TotalDeployments != 2 {
		t.Fatalf("expected other chains unaffected, got %d deployments", m.TotalDeployments)
	}
	d, _ := m.Lookup(137)
	if d.Present() || !strings.HasPrefix(d.Reason, "network error") {
		t.Errorf("expected network error reason, got %+v", d)
	}
}

func TestProbeReusesKnownStates(t *testing.T) {
	fetcher := &fakeFetcher{}
	known := map[uint64]*safe.State{1: {ChainID: 1, Threshold: 1, Owners: []common.Address{ownerA}}}
	p := New(testRegistry(t), fetcher, 4, nil)

	m := p.Probe(context.Background(), safeAddr, known)

	for _, id := range fetcher.fetched {
		if id == 1 {
			t.Fatal("known chain was fetched again")
		}
	}
	if len(fetcher.fetched) != 4 {
		t.Errorf("expected 4 fetches, got %d", len(fetcher.fetched))
	}
	if d, _ := m.Lookup(1); d.State != known[1] {
		t.Error("known state not reused")
	}
}

func TestProbeTimeoutMarksUnresolvedChains(t *testing.T) {
	fetcher := &fakeFetcher{
		states: map[uint64]*safe.State{1: {ChainID: 1, Threshold: 1, Owners: []common.Address{ownerA}}},
		hang:   map[uint64]bool{10: true, 42161: true},
	}
	p := New(testRegistry(t), fetcher, 5, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m := p.Probe(ctx, safeAddr, nil)

	for _, id := range []uint64{10, 42161} {
		d, _ := m.Lookup(id)
		if d.Present() || d.Reason != "probe timed out" {
			t.Errorf("chain %d: expected timeout reason, got %+v", id, d)
		}
	}
	if d, _ := m.Lookup(1); !d.Present() {
		t.Error("resolved chain lost on timeout")
	}
}

func TestProbeCallTimeoutIsNetworkError(t *testing.T) {
	callTimeout := domainerrors.Wrap(10, "eth_call", fmt.Errorf("%w: %w", domainerrors.ErrNetwork, context.DeadlineExceeded))
	fetcher := &fakeFetcher{errs: map[uint64]error{10: callTimeout}}
	p := New(testRegistry(t), fetcher, 2, zaptest.NewLogger(t))

	m := p.Probe(context.Background(), safeAddr, nil)

	d, _ := m.Lookup(10)
	if d.Present() {
		t.Fatal("chain 10 should be absent")
	}
	if !strings.HasPrefix(d.Reason, "network error") {
		t.Errorf("expected network error reason, got %q", d.Reason)
	}
}
