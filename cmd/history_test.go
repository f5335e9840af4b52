package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	jsonstore "github.com/khanhnv2901/safe-audit/internal/infrastructure/persistence/json"
)

func setupHistoryRepo(t *testing.T, appCtx *AppContext) *jsonstore.ReportRepository {
	t.Helper()
	repo, err := jsonstore.NewReportRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewReportRepository: %v", err)
	}
	appCtx.Services.Reports = repo
	return repo
}

func TestAnalyzeSaveThenHistory(t *testing.T) {
	appCtx := setupTestAppContext(t)
	setupHistoryRepo(t, appCtx)
	appCtx.Config.Analyze.Save = true

	for i := 0; i < 2; i++ {
		out, err := runCommand(t, analyzeCmd, []string{testSafe}, map[string]string{"chain": "ethereum"})
		if err != nil {
			t.Fatalf("analyze run %d: %v", i, err)
		}
		if !strings.Contains(out, "Saved") {
			t.Errorf("analyze run %d: expected save confirmation, got:\n%s", i, out)
		}
	}

	out, err := runCommand(t, historyCmd, []string{testSafe}, map[string]string{"chain": "ethereum"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "SCORE") {
		t.Errorf("expected table header, got:\n%s", out)
	}
	if !strings.Contains(out, "+0") {
		t.Errorf("expected unchanged score delta, got:\n%s", out)
	}

	out, err = runCommand(t, historyCmd, []string{testSafe}, map[string]string{"chain": "ethereum", "json": "true"})
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var stored []jsonstore.StoredReport
	if err := json.Unmarshal([]byte(out), &stored); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored reports, got %d", len(stored))
	}
}

func TestAnalyzeWithoutSaveWritesNothing(t *testing.T) {
	appCtx := setupTestAppContext(t)
	setupHistoryRepo(t, appCtx)
	if appCtx.Config.Analyze.Save {
		t.Fatal("expected --save to default to false")
	}

	out, err := runCommand(t, analyzeCmd, []string{testSafe}, map[string]string{"chain": "ethereum"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if strings.Contains(out, "Saved") {
		t.Errorf("unexpected save confirmation:\n%s", out)
	}

	out, err = runCommand(t, historyCmd, []string{testSafe}, map[string]string{"chain": "ethereum"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No saved reports") {
		t.Errorf("expected empty history, got:\n%s", out)
	}
}

func TestHistoryEmptyAndClear(t *testing.T) {
	appCtx := setupTestAppContext(t)
	repo := setupHistoryRepo(t, appCtx)

	out, err := runCommand(t, historyCmd, []string{testSafe}, map[string]string{"chain": "ethereum"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No saved reports") {
		t.Errorf("unexpected output:\n%s", out)
	}

	runner := &analysis.Runner{Concurrency: 1}
	outcomes := runner.Run(context.Background(), appCtx.Services.Orchestrator,
		[]analysis.Target{{ChainID: 1, Address: testSafe}}, analysis.Options{}, nil)
	if outcomes[0].Failed() {
		t.Fatalf("analysis failed: %s", outcomes[0].Error)
	}
	var buf bytes.Buffer
	if err := saveReports(context.Background(), &buf, repo, outcomes); err != nil {
		t.Fatalf("saveReports: %v", err)
	}
	if !strings.Contains(buf.String(), "first report") {
		t.Errorf("expected first report note, got %q", buf.String())
	}

	if _, err := runCommand(t, historyCmd, []string{testSafe}, map[string]string{"chain": "ethereum", "clear": "true"}); err != nil {
		t.Fatalf("history --clear: %v", err)
	}
	if _, err := repo.Latest(context.Background(), 1, outcomes[0].Report.Address); err == nil {
		t.Error("expected no report after clear")
	}
}

func TestHistoryErrors(t *testing.T) {
	testCases := []struct {
		name  string
		args  []string
		flags map[string]string
		repo  bool
	}{
		{name: "not configured", args: []string{testSafe}, flags: map[string]string{"chain": "ethereum"}},
		{name: "missing chain", args: []string{testSafe}, repo: true},
		{name: "unknown chain", args: []string{testSafe}, flags: map[string]string{"chain": "nope"}, repo: true},
		{name: "bad address", args: []string{"0x12"}, flags: map[string]string{"chain": "ethereum"}, repo: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			appCtx := setupTestAppContext(t)
			if tc.repo {
				setupHistoryRepo(t, appCtx)
			}
			if _, err := runCommand(t, historyCmd, tc.args, tc.flags); err == nil {
				t.Error("expected error")
			}
		})
	}
}
