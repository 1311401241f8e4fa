// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"veriflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ProfileDir = filepath.Join(base, "profiles")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = "test-token"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIToken overrides the API bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithSheerIDBaseURL points the step client at a test server.
func WithSheerIDBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SheerID.BaseURL = url
	}
}

// WithDocGen enables the document render service against a test server.
func WithDocGen(url, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.DocGen.Enabled = true
		b.cfg.DocGen.BaseURL = url
		b.cfg.DocGen.APIKey = apiKey
	}
}

// WithWorkflowTuning overrides retry and timeout settings for fast tests.
func WithWorkflowTuning(maxAttempts, stepTimeoutSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxAttempts = maxAttempts
		b.cfg.Workflow.StepTimeoutSeconds = stepTimeoutSeconds
	}
}
