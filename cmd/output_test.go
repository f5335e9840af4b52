package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/check"
	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
)

func sampleOutcomes() []analysis.Outcome {
	owners := []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		common.HexToAddress("0x00000000000000000000000000000000000000b2"),
	}
	state := &safe.State{
		Address:   common.HexToAddress(testSafe),
		ChainID:   1,
		Version:   "1.3.0",
		Threshold: 2,
		Owners:    owners,
		Nonce:     7,
	}
	checks := []check.Result{
		{RuleID: check.RuleSignerThreshold, Title: "Signer Threshold", Status: check.StatusWarn, Message: "2 | of 2"},
		{RuleID: check.RuleNonce, Title: "Multisig Nonce", Status: check.StatusPass, Message: "7 transactions"},
	}
	chains := []chain.Descriptor{
		{ID: 1, Slug: "ethereum", Name: "Ethereum"},
		{ID: 10, Slug: "optimism", Name: "Optimism"},
	}
	deployments := safe.NewDeploymentMap(chains, []*safe.State{state, nil}, []string{"", "no contract code"})
	return []analysis.Outcome{
		{
			Target: analysis.Target{ChainID: 1, Address: testSafe},
			Report: &analysis.Report{
				Address:     state.Address,
				ChainID:     1,
				ChainName:   "Ethereum",
				ExplorerURL: "https://etherscan.io/",
				State:       state,
				Checks:      checks,
				Score:       check.Aggregate(checks),
				Deployments: &deployments,
				Unavailable: []string{"block explorer not configured"},
			},
		},
		{
			Target:   analysis.Target{ChainID: 10, Address: notASafeHex},
			Category: "NotASafe",
			Error:    "chain 10: eth_getCode: address is not a Safe multisig",
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	testCases := []struct {
		in   string
		want outputFormat
		ok   bool
	}{
		{in: "", want: formatHuman, ok: true},
		{in: "HUMAN", want: formatHuman, ok: true},
		{in: "json", want: formatJSON, ok: true},
		{in: "csv", want: formatCSV, ok: true},
		{in: "md", want: formatMarkdown, ok: true},
		{in: "xml", ok: false},
	}
	for _, tc := range testCases {
		got, err := parseOutputFormat(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("parseOutputFormat(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestRenderHuman(t *testing.T) {
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = original })

	var buf bytes.Buffer
	if err := renderOutcomes(&buf, formatHuman, sampleOutcomes()); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Threshold 2 of 2",
		"WARN",
		"Unavailable data:",
		"Deployments: 1 chain(s)",
		"no contract code",
		"https://etherscan.io/address/",
		"NotASafe",
		"1 analysed, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderJSON(t *testing.T) {
	outcomes := sampleOutcomes()

	var single bytes.Buffer
	if err := renderOutcomes(&single, formatJSON, outcomes[:1]); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	var report analysis.Report
	if err := json.Unmarshal(single.Bytes(), &report); err != nil {
		t.Fatalf("single outcome must render as a report: %v", err)
	}
	if report.Score.Rating == "" || len(report.Checks) != 2 {
		t.Errorf("unexpected report: %+v", report)
	}

	var batch bytes.Buffer
	if err := renderOutcomes(&batch, formatJSON, outcomes); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	var decoded []analysis.Outcome
	if err := json.Unmarshal(batch.Bytes(), &decoded); err != nil {
		t.Fatalf("batch must render as a list: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Category != "NotASafe" {
		t.Errorf("unexpected outcomes: %+v", decoded)
	}
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := renderOutcomes(&buf, formatCSV, sampleOutcomes()); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 2 checks + 1 failure, got %d rows", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][4] != string(check.RuleSignerThreshold) || rows[1][5] != "warn" || rows[1][6] != "2 | of 2" {
		t.Errorf("unexpected check row %v", rows[1])
	}
	if rows[3][7] != "NotASafe" {
		t.Errorf("unexpected failure row %v", rows[3])
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := renderOutcomes(&buf, formatMarkdown, sampleOutcomes()); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# Safe Security Report",
		"| Threshold | 2 of 2 |",
		`2 \| of 2`,
		"- Optimism: absent (no contract code)",
		"Analysis failed: **NotASafe**",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in markdown:\n%s", want, out)
		}
	}
}
