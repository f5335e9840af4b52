package application

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewContainerDefaults(t *testing.T) {
	c, err := NewContainer(Config{Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	if c.Registry.Len() == 0 {
		t.Fatal("expected built-in chains")
	}
	if c.Orchestrator == nil || c.Prober == nil || c.Extractor == nil {
		t.Fatal("services not wired")
	}
	if c.Explorer.Enabled() {
		t.Error("explorer must be disabled without an API key")
	}
	if c.Orchestrator.Registry() != c.Registry {
		t.Error("orchestrator must share the container registry")
	}
}

func TestNewContainerEndpointOverride(t *testing.T) {
	c, err := NewContainer(Config{
		Endpoints:      map[string]string{"ethereum": "http://localhost:8545"},
		ExplorerAPIKey: "key",
	})
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	desc, ok := c.Registry.Lookup(1)
	if !ok {
		t.Fatal("ethereum missing from registry")
	}
	if desc.RPCEndpoint != "http://localhost:8545" {
		t.Errorf("override not applied: %s", desc.RPCEndpoint)
	}
	if !c.Explorer.Enabled() {
		t.Error("explorer should be enabled with an API key")
	}
}

func TestNewContainerChainsFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "chains.yaml")
	data := []byte("chains:\n  - id: 31337\n    slug: local\n    name: Local\n    rpc_url: http://127.0.0.1:8545\n")
	if err := os.WriteFile(good, data, 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := NewContainer(Config{ChainsFile: good})
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()
	if c.Registry.Len() != 1 {
		t.Errorf("expected 1 chain, got %d", c.Registry.Len())
	}

	if _, err := NewContainer(Config{ChainsFile: filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("expected error for missing chains file")
	}
}

func TestNewContainerReports(t *testing.T) {
	c, err := NewContainer(Config{})
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	if c.Reports != nil {
		t.Error("report history must be disabled without a directory")
	}
	c.Close()

	dir := filepath.Join(t.TempDir(), "reports")
	c, err = NewContainer(Config{ReportsDir: dir})
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()
	if c.Reports == nil {
		t.Fatal("expected report repository")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("reports directory not created: %v", err)
	}
}
