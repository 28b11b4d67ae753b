package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}
	if cfg.Budget.Total != 300 || cfg.Budget.PerOperationCap != 50 {
		t.Errorf("unexpected budget defaults: %+v", cfg.Budget)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.OpenTimeout != 60*time.Second {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adcraft.yaml")
	body := []byte("addr: \"0.0.0.0:9090\"\nbudget:\n  total: 120\nmodels:\n  gemini: gemini-2.5-pro\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ADCRAFT_BUDGET_TOTAL", "150")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9090" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Budget.Total != 150 {
		t.Errorf("env override lost, total = %v", cfg.Budget.Total)
	}
	if cfg.Models.Gemini != "gemini-2.5-pro" {
		t.Errorf("gemini model = %q", cfg.Models.Gemini)
	}
	// Untouched sections keep defaults.
	if cfg.Costs.Video != 2.50 {
		t.Errorf("video cost = %v", cfg.Costs.Video)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
