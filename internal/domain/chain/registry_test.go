package chain

import (
	"errors"
	"testing"

	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

func TestDefaultRegistry(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	if reg.Len() != 6 {
		t.Fatalf("expected 6 chains, got %d", reg.Len())
	}

	eth, ok := reg.Lookup(1)
	if !ok {
		t.Fatal("expected ethereum to be registered")
	}
	if eth.Slug != "ethereum" || eth.NativeCurrencySymbol != "ETH" {
		t.Errorf("unexpected ethereum descriptor: %+v", eth)
	}
	if len(eth.Tokens) == 0 {
		t.Error("expected ethereum tokens to be loaded")
	}
}

func TestRegistryResolve(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	testCases := []struct {
		key    string
		wantID uint64
		wantOK bool
	}{
		{key: "42161", wantID: 42161, wantOK: true},
		{key: "arbitrum", wantID: 42161, wantOK: true},
		{key: " Base ", wantID: 8453, wantOK: true},
		{key: "solana", wantOK: false},
		{key: "999", wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			desc, ok := reg.Resolve(tc.key)
			if ok != tc.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tc.key, ok, tc.wantOK)
			}
			if ok && desc.ID != tc.wantID {
				t.Errorf("Resolve(%q) id = %d, want %d", tc.key, desc.ID, tc.wantID)
			}
		})
	}
}

func TestRegistryAllReturnsCopy(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	all := reg.All()
	all[0].Name = "mutated"

	first, _ := reg.Lookup(all[0].ID)
	if first.Name == "mutated" {
		t.Error("All must not expose internal storage")
	}
}

func TestRegistryWithEndpoints(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	custom := reg.WithEndpoints(map[string]string{"ethereum": "http://localhost:8545", "nope": "x"})

	eth, _ := custom.Lookup(1)
	if eth.RPCEndpoint != "http://localhost:8545" {
		t.Errorf("expected override endpoint, got %s", eth.RPCEndpoint)
	}
	orig, _ := reg.Lookup(1)
	if orig.RPCEndpoint == "http://localhost:8545" {
		t.Error("original registry must stay unchanged")
	}
}

func TestParseRejectsInvalidRegistries(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
		want error
	}{
		{name: "empty", yaml: "chains: []", want: domainerrors.ErrEmptyRegistry},
		{
			name: "duplicate id",
			yaml: "chains:\n  - {id: 1, slug: a, rpc_url: x}\n  - {id: 1, slug: b, rpc_url: y}\n",
			want: domainerrors.ErrDuplicateChain,
		},
		{
			name: "missing rpc",
			yaml: "chains:\n  - {id: 1, slug: a}\n",
			want: domainerrors.ErrMissingRequired,
		},
		{
			name: "bad factory",
			yaml: "chains:\n  - {id: 1, slug: a, rpc_url: x, factory_address: nothex}\n",
			want: domainerrors.ErrInvalidInput,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
