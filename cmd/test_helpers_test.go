package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/safe-audit/internal/application"
	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

const (
	testSafe    = "0x5afe000000000000000000000000000000000001"
	notASafeHex = "0x0000000000000000000000000000000000000bad"
)

// stubFetcher serves a fixed 2-of-3 Safe everywhere except notASafeHex.
type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, desc chain.Descriptor, address common.Address) (*safe.State, error) {
	if address == common.HexToAddress(notASafeHex) {
		return nil, domainerrors.Wrap(desc.ID, "eth_getCode", domainerrors.ErrNotASafe)
	}
	return &safe.State{
		Address:     address,
		ChainID:     desc.ID,
		BlockNumber: 1_000,
		Version:     "1.4.1",
		Threshold:   2,
		Owners: []common.Address{
			common.HexToAddress("0x00000000000000000000000000000000000000a1"),
			common.HexToAddress("0x00000000000000000000000000000000000000b2"),
			common.HexToAddress("0x00000000000000000000000000000000000000c3"),
		},
		Nonce: 42,
	}, nil
}

func (stubFetcher) OwnerKinds(ctx context.Context, desc chain.Descriptor, owners []common.Address, block uint64) (map[common.Address]bool, error) {
	out := make(map[common.Address]bool, len(owners))
	for _, o := range owners {
		out[o] = false
	}
	return out, nil
}

func (stubFetcher) RecoveryThresholds(ctx context.Context, desc chain.Descriptor, modules []common.Address, block uint64) (map[common.Address]uint64, error) {
	return map[common.Address]uint64{}, nil
}

func testRegistry(t *testing.T) *chain.Registry {
	t.Helper()
	reg, err := chain.New([]chain.Descriptor{
		{ID: 1, Slug: "ethereum", Name: "Ethereum", RPCEndpoint: "http://eth.invalid", ExplorerURL: "https://etherscan.io", NativeCurrencySymbol: "ETH"},
		{ID: 42161, Slug: "arbitrum", Name: "Arbitrum One", RPCEndpoint: "http://arb.invalid", NativeCurrencySymbol: "ETH"},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

// setupTestAppContext installs an AppContext backed by stub services and
// restores the previous one when the test ends.
func setupTestAppContext(t *testing.T) *AppContext {
	t.Helper()

	original := globalAppContext
	originalNoColor := color.NoColor
	color.NoColor = true
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	logger := zaptest.NewLogger(t)
	reg := testRegistry(t)
	cfg := newCLIConfig()
	cfg.Analyze.ProgressEnabled = false

	appCtx := &AppContext{
		Logger: logger.Sugar(),
		Config: cfg,
		Services: &application.Container{
			Registry:     reg,
			Orchestrator: analysis.NewOrchestrator(reg, stubFetcher{}, nil, nil, nil, nil, logger),
		},
	}
	globalAppContext = appCtx

	t.Cleanup(func() {
		globalAppContext = original
		color.NoColor = originalNoColor
	})
	return appCtx
}

// runCommand invokes cmd's RunE with fresh flag values and captured output.
func runCommand(t *testing.T, cmd *cobra.Command, args []string, flags map[string]string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		cmd.Flags().Visit(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})

	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set flag %s: %v", name, err)
		}
	}

	err := cmd.RunE(cmd, args)
	return out.String(), err
}
