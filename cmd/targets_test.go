package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

func TestResolveChainFlag(t *testing.T) {
	reg := testRegistry(t)

	testCases := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{in: "ethereum", want: 1, ok: true},
		{in: " Arbitrum ", want: 42161, ok: true},
		{in: "42161", want: 42161, ok: true},
		{in: "137", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range testCases {
		desc, err := resolveChainFlag(reg, tc.in)
		if tc.ok {
			if err != nil || desc.ID != tc.want {
				t.Errorf("resolveChainFlag(%q) = %d, %v; want %d", tc.in, desc.ID, err, tc.want)
			}
			continue
		}
		if !errors.Is(err, domainerrors.ErrUnsupportedChain) {
			t.Errorf("resolveChainFlag(%q): expected unsupported chain, got %v", tc.in, err)
		}
	}
}

func TestParseTargets(t *testing.T) {
	reg := testRegistry(t)
	eth, _ := reg.Resolve("ethereum")

	input := strings.Join([]string{
		"# production safes",
		"",
		"0xaaaa000000000000000000000000000000000001",
		"arbitrum 0xbbbb000000000000000000000000000000000002",
		"1,0xcccc000000000000000000000000000000000003",
		"  42161\t0xdddd000000000000000000000000000000000004  ",
	}, "\n")

	targets, err := parseTargets(strings.NewReader(input), reg, &eth)
	if err != nil {
		t.Fatalf("parseTargets failed: %v", err)
	}
	want := []analysis.Target{
		{ChainID: 1, Address: "0xaaaa000000000000000000000000000000000001"},
		{ChainID: 42161, Address: "0xbbbb000000000000000000000000000000000002"},
		{ChainID: 1, Address: "0xcccc000000000000000000000000000000000003"},
		{ChainID: 42161, Address: "0xdddd000000000000000000000000000000000004"},
	}
	if len(targets) != len(want) {
		t.Fatalf("expected %d targets, got %+v", len(want), targets)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("target %d: expected %+v, got %+v", i, want[i], targets[i])
		}
	}
}

func TestParseTargetsErrors(t *testing.T) {
	reg := testRegistry(t)

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare address without chain", input: "0xaaaa000000000000000000000000000000000001", want: "line 1"},
		{name: "unknown chain", input: "\nsolana 0xaaaa000000000000000000000000000000000001", want: "line 2"},
		{name: "too many fields", input: "ethereum 0xaaaa 0xbbbb", want: "line 1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseTargets(strings.NewReader(tc.input), reg, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
