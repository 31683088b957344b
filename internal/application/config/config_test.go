// ABOUTME: Tests for YAML configuration parsing and proxy precedence
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/httpstreaminput/internal/domain/stream"
	"github.com/harper/httpstreaminput/internal/infrastructure/reactor"
)

func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	cfgPath := writeConfig(t, `
user_agent: "test-agent/1.0"
connect_timeout_ms: 5000
max_redirects: 3
max_concurrent_transfers: 8
buffering:
  max_buffered_bytes: 131072
  resume_at_bytes: 65536
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.UserAgent != "test-agent/1.0" {
		t.Errorf("expected user agent test-agent/1.0, got %s", cfg.UserAgent)
	}
	if cfg.MaxRedirects != 3 {
		t.Errorf("expected max_redirects 3, got %d", cfg.MaxRedirects)
	}
	if cfg.MaxConcurrent() != 8 {
		t.Errorf("expected MaxConcurrent 8, got %d", cfg.MaxConcurrent())
	}
	if cfg.Buffering.MaxBufferedBytes != 131072 {
		t.Errorf("expected max_buffered_bytes 131072, got %d", cfg.Buffering.MaxBufferedBytes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolveProxy_BlockFormTakesPrecedence(t *testing.T) {
	cfg := &Config{
		Proxy:         "proxy.example.com",
		ProxyPort:     8080,
		HTTPProxyHost: "legacy.example.com",
		HTTPProxyPort: 3128,
	}

	p := cfg.ResolveProxy()
	if p.Host != "proxy.example.com" || p.Port != 8080 {
		t.Errorf("expected block-form proxy to win, got %+v", p)
	}
}

func TestResolveProxy_FallsBackToLegacyKeys(t *testing.T) {
	cfg := &Config{
		HTTPProxyHost: "legacy.example.com",
		HTTPProxyPort: 3128,
		HTTPProxyUser: "alice",
	}

	p := cfg.ResolveProxy()
	if p.Host != "legacy.example.com" || p.Port != 3128 || p.User != "alice" {
		t.Errorf("expected legacy proxy fields, got %+v", p)
	}
}

func TestResolveProxy_Unset(t *testing.T) {
	cfg := &Config{}
	if cfg.ResolveProxy().Enabled() {
		t.Error("expected no proxy configured")
	}
}

func TestToTransferOptions_AppliesOverridesOverDefaults(t *testing.T) {
	cfg := &Config{
		UserAgent:        "custom-agent",
		ConnectTimeoutMs: 2500,
		MaxRedirects:     1,
	}

	opts := cfg.ToTransferOptions()
	if opts.UserAgent != "custom-agent" {
		t.Errorf("expected custom user agent, got %s", opts.UserAgent)
	}
	if opts.ConnectTimeout != 2500*time.Millisecond {
		t.Errorf("expected 2500ms connect timeout, got %s", opts.ConnectTimeout)
	}
	if opts.MaxRedirects != 1 {
		t.Errorf("expected max redirects 1, got %d", opts.MaxRedirects)
	}
}

func TestToTransferOptions_ZeroValuesKeepDefaults(t *testing.T) {
	cfg := &Config{}
	defaults := reactor.DefaultTransferOptions()

	opts := cfg.ToTransferOptions()
	if opts.UserAgent != defaults.UserAgent {
		t.Errorf("expected default user agent, got %s", opts.UserAgent)
	}
	if opts.MaxRedirects != defaults.MaxRedirects {
		t.Errorf("expected default max redirects, got %d", opts.MaxRedirects)
	}
}

func TestMaxConcurrent_ZeroMeansUnset(t *testing.T) {
	cfg := &Config{}
	if cfg.MaxConcurrent() != 0 {
		t.Errorf("expected 0 for unset MaxConcurrentTransfers, got %d", cfg.MaxConcurrent())
	}
}

func TestToWatermarks_AppliesConfiguredOverrides(t *testing.T) {
	cfg := &Config{Buffering: BufferingConfig{MaxBufferedBytes: 131072, ResumeAtBytes: 65536}}

	wm := cfg.ToWatermarks()
	if wm.MaxBuffered != 131072 {
		t.Errorf("expected MaxBuffered 131072, got %d", wm.MaxBuffered)
	}
	if wm.ResumeAt != 65536 {
		t.Errorf("expected ResumeAt 65536, got %d", wm.ResumeAt)
	}
}

func TestToWatermarks_UnconfiguredBufferingIsZeroValue(t *testing.T) {
	cfg := &Config{}

	// An unconfigured Buffering section produces a zero-value
	// Watermarks; Stream.Open's own sanitize step (not this package's
	// job) is what turns that into stream.DefaultWatermarks().
	wm := cfg.ToWatermarks()
	if wm != (stream.Watermarks{}) {
		t.Errorf("expected zero-value Watermarks for unconfigured buffering, got %+v", wm)
	}
}

func TestLoad_BuffersingOverridesReachWatermarks(t *testing.T) {
	cfgPath := writeConfig(t, `
buffering:
  max_buffered_bytes: 200000
  resume_at_bytes: 100000
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	wm := cfg.ToWatermarks()
	if wm.MaxBuffered != 200000 || wm.ResumeAt != 100000 {
		t.Fatalf("expected watermarks from config to carry through, got %+v", wm)
	}
}
