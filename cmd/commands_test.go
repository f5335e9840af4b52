package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/check"
	"github.com/khanhnv2901/safe-audit/internal/infrastructure/explorer"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

func TestRulesCommand(t *testing.T) {
	setupTestAppContext(t)

	out, err := runCommand(t, rulesCmd, nil, nil)
	if err != nil {
		t.Fatalf("rules failed: %v", err)
	}
	for _, r := range check.Rules() {
		if !strings.Contains(out, string(r.ID)) {
			t.Errorf("missing rule %s in output", r.ID)
		}
	}
	if !strings.Contains(out, "14 rules") {
		t.Errorf("expected rule count in output:\n%s", out)
	}

	out, err = runCommand(t, rulesCmd, nil, map[string]string{"json": "true"})
	if err != nil {
		t.Fatalf("rules --json failed: %v", err)
	}
	var rules []check.RuleMeta
	if err := json.Unmarshal([]byte(out), &rules); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(rules) != len(check.Rules()) {
		t.Errorf("expected %d rules, got %d", len(check.Rules()), len(rules))
	}
}

func TestRulesCommandSingleRule(t *testing.T) {
	setupTestAppContext(t)

	testCases := []struct {
		name    string
		args    []string
		flags   map[string]string
		want    string
		wantErr error
	}{
		{name: "text", args: []string{string(check.RuleSafeVersion)}, want: "Weight:"},
		{name: "json", args: []string{string(check.RuleNonce)}, flags: map[string]string{"json": "true"}, want: `"weight"`},
		{name: "unknown", args: []string{"no_such_rule"}, wantErr: domainerrors.ErrInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runCommand(t, rulesCmd, tc.args, tc.flags)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("rules %v failed: %v", tc.args, err)
			}
			meta, _ := check.Meta(check.RuleID(tc.args[0]))
			if !strings.Contains(out, meta.Title) || !strings.Contains(out, tc.want) {
				t.Errorf("expected %q and %q in output:\n%s", meta.Title, tc.want, out)
			}
		})
	}
}

func TestChainsCommand(t *testing.T) {
	setupTestAppContext(t)

	out, err := runCommand(t, chainsCmd, nil, nil)
	if err != nil {
		t.Fatalf("chains failed: %v", err)
	}
	if !strings.Contains(out, "ethereum") || !strings.Contains(out, "Arbitrum One") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestAnalyzeCommandHuman(t *testing.T) {
	setupTestAppContext(t)

	out, err := runCommand(t, analyzeCmd, []string{testSafe}, map[string]string{"chain": "ethereum"})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	for _, want := range []string{"Ethereum (chain 1)", "Threshold 2 of 3", "Security score:", "Signer Threshold", "etherscan.io/address/"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestAnalyzeCommandJSON(t *testing.T) {
	setupTestAppContext(t)

	out, err := runCommand(t, analyzeCmd, []string{testSafe}, map[string]string{"chain": "1", "output": "json"})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	var report analysis.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if report.ChainID != 1 || len(report.Checks) != len(check.Rules()) {
		t.Errorf("unexpected report: chain %d, %d checks", report.ChainID, len(report.Checks))
	}
}

func TestAnalyzeCommandErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		flags    map[string]string
		exitCode int
	}{
		{name: "missing chain", args: []string{testSafe}, exitCode: exitFailure},
		{name: "unknown chain", args: []string{testSafe}, flags: map[string]string{"chain": "solana"}, exitCode: exitInvalidInput},
		{name: "bad output", args: []string{testSafe}, flags: map[string]string{"chain": "ethereum", "output": "xml"}, exitCode: exitInvalidInput},
		{name: "invalid address", args: []string{"0x1234"}, flags: map[string]string{"chain": "ethereum"}, exitCode: exitInvalidInput},
		{name: "not a safe", args: []string{notASafeHex}, flags: map[string]string{"chain": "ethereum"}, exitCode: exitNotASafe},
		{name: "no targets", flags: map[string]string{"chain": "ethereum"}, exitCode: exitFailure},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setupTestAppContext(t)
			_, err := runCommand(t, analyzeCmd, tc.args, tc.flags)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := exitCode(err); got != tc.exitCode {
				t.Errorf("expected exit code %d, got %d (%v)", tc.exitCode, got, err)
			}
		})
	}
}

func TestAnalyzeCommandBatchToFile(t *testing.T) {
	setupTestAppContext(t)
	dir := t.TempDir()
	t.Chdir(dir)

	batch := "# treasury\n" + testSafe + "\narbitrum " + testSafe + "\n\nethereum," + notASafeHex + "\n"
	if err := os.WriteFile("safes.txt", []byte(batch), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	_, err := runCommand(t, analyzeCmd, nil, map[string]string{
		"chain":  "ethereum",
		"batch":  "safes.txt",
		"output": "csv",
		"file":   "out/report.csv",
	})
	var batchErr *BatchFailedError
	if !errors.As(err, &batchErr) || batchErr.Failed != 1 || batchErr.Total != 3 {
		t.Fatalf("expected 1 of 3 failed, got %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "report.csv"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// header + 14 rules for each of two Safes + one failure row
	if want := 1 + 2*len(check.Rules()) + 1; len(lines) != want {
		t.Errorf("expected %d CSV lines, got %d", want, len(lines))
	}
	if !strings.Contains(string(data), "NotASafe") {
		t.Error("failure row missing from CSV")
	}
}

func TestAnalyzeCommandRejectsEscapingFile(t *testing.T) {
	setupTestAppContext(t)
	t.Chdir(t.TempDir())

	_, err := runCommand(t, analyzeCmd, []string{testSafe}, map[string]string{"chain": "ethereum", "file": "../escape.txt"})
	if err == nil {
		t.Fatal("expected path escape error")
	}
}

func TestInfoCommand(t *testing.T) {
	appCtx := setupTestAppContext(t)
	appCtx.Services.Explorer = explorer.New(explorer.Options{})

	out, err := runCommand(t, infoCmd, nil, nil)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{"Chain Registry:     built-in (2 chains)", "Block Explorer:     disabled", "telemetry.jsonl"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	if got := out.String(); got != "safe-audit version "+Version+"\n" {
		t.Errorf("unexpected version output %q", got)
	}
}
