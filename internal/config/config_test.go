package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"veriflow/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.SheerID.BaseURL != "https://services.sheerid.com" {
		t.Fatalf("unexpected default base url: %q", cfg.SheerID.BaseURL)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Fatalf("unexpected default max attempts: %d", cfg.Workflow.MaxAttempts)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[sheerid]
base_url = "https://verify.example.com/"

[workflow]
max_attempts = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved existing path %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.SheerID.BaseURL != "https://verify.example.com" {
		t.Fatalf("expected trailing slash stripped, got %q", cfg.SheerID.BaseURL)
	}
	if cfg.Workflow.MaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.Workflow.MaxAttempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.SheerID.BaseURL = "not-a-url"
	cfg.Logging.Format = "yaml"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "sheerid.base_url") || !strings.Contains(msg, "logging.format") {
		t.Fatalf("expected both problems reported, got %q", msg)
	}
}

func TestValidateRequiresDocgenURLWhenEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.DocGen.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled docgen without base url")
	}
}
