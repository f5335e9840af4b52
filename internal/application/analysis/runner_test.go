package analysis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

type stubAnalyzer struct {
	delay  map[string]time.Duration
	fail   map[string]error
	active atomic.Int32
	peak   atomic.Int32
}

func (s *stubAnalyzer) Analyze(ctx context.Context, chainID uint64, address string, opts Options) (*Report, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if d := s.delay[address]; d > 0 {
		time.Sleep(d)
	}
	if err := s.fail[address]; err != nil {
		return nil, err
	}
	return &Report{ChainID: chainID}, nil
}

func TestRunnerKeepsInputOrder(t *testing.T) {
	targets := []Target{
		{ChainID: 1, Address: "slow"},
		{ChainID: 10, Address: "fast"},
		{ChainID: 137, Address: "bad"},
		{ChainID: 8453, Address: "fast-2"},
	}
	analyzer := &stubAnalyzer{
		delay: map[string]time.Duration{"slow": 30 * time.Millisecond},
		fail:  map[string]error{"bad": fmt.Errorf("fetch: %w", domainerrors.ErrNotASafe)},
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	r := &Runner{Concurrency: 4, RateLimit: 100}
	outcomes := r.Run(context.Background(), analyzer, targets, Options{}, func(i int, o Outcome) {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	})

	if len(outcomes) != len(targets) {
		t.Fatalf("expected %d outcomes, got %d", len(targets), len(outcomes))
	}
	if len(seen) != len(targets) {
		t.Errorf("callback called for %d targets, expected %d", len(seen), len(targets))
	}
	for i, o := range outcomes {
		if o.Target != targets[i] {
			t.Errorf("outcome %d: expected target %+v, got %+v", i, targets[i], o.Target)
		}
	}

	bad := outcomes[2]
	if !bad.Failed() || bad.Category != "NotASafe" {
		t.Errorf("expected NotASafe failure, got %+v", bad)
	}
	for _, i := range []int{0, 1, 3} {
		if outcomes[i].Failed() {
			t.Errorf("outcome %d should succeed: %s", i, outcomes[i].Error)
		}
		if outcomes[i].Report.ChainID != targets[i].ChainID {
			t.Errorf("outcome %d carries wrong report", i)
		}
	}
}

func TestRunnerRespectsConcurrency(t *testing.T) {
	targets := make([]Target, 8)
	delay := make(map[string]time.Duration)
	for i := range targets {
		addr := fmt.Sprintf("safe-%d", i)
		targets[i] = Target{ChainID: 1, Address: addr}
		delay[addr] = 10 * time.Millisecond
	}
	analyzer := &stubAnalyzer{delay: delay}

	r := &Runner{Concurrency: 2, RateLimit: 1000}
	r.Run(context.Background(), analyzer, targets, Options{}, nil)

	if peak := analyzer.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent analyses, got %d", peak)
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Concurrency: 1, RateLimit: 1}
	targets := []Target{{ChainID: 1, Address: "a"}, {ChainID: 1, Address: "b"}, {ChainID: 1, Address: "c"}}
	outcomes := r.Run(ctx, &stubAnalyzer{}, targets, Options{}, nil)

	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	if failed == 0 {
		t.Error("expected cancelled batch to record failures")
	}
}
