// ABOUTME: YAML configuration for the HTTP streaming input subsystem
// ABOUTME: Resolves proxy settings with legacy-key fallback per §6's configuration surface
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/httpstreaminput/internal/domain/stream"
	"github.com/harper/httpstreaminput/internal/infrastructure/reactor"
)

// Config is the configuration surface of §6: proxy settings (block form
// taking precedence over legacy flat keys), connect timeout, redirect
// cap, user agent, and the pause/resume watermarks.
type Config struct {
	Proxy         string `yaml:"proxy"`
	ProxyPort     int    `yaml:"proxy_port"`
	ProxyUser     string `yaml:"proxy_user"`
	ProxyPassword string `yaml:"proxy_password"`

	// Legacy keys, honoured only when the block form above is absent.
	HTTPProxyHost     string `yaml:"http_proxy_host"`
	HTTPProxyPort     int    `yaml:"http_proxy_port"`
	HTTPProxyUser     string `yaml:"http_proxy_user"`
	HTTPProxyPassword string `yaml:"http_proxy_password"`

	UserAgent              string          `yaml:"user_agent"`
	ConnectTimeoutMs       int             `yaml:"connect_timeout_ms"`
	MaxRedirects           int             `yaml:"max_redirects"`
	MaxConcurrentTransfers int             `yaml:"max_concurrent_transfers"`
	Buffering              BufferingConfig `yaml:"buffering"`
}

// BufferingConfig overrides the hysteresis watermarks of §5.
// ToWatermarks passes zero values through unchanged; stream.Open
// replaces them with stream.MaxBuffered/stream.ResumeAt.
type BufferingConfig struct {
	MaxBufferedBytes int `yaml:"max_buffered_bytes"`
	ResumeAtBytes    int `yaml:"resume_at_bytes"`
}

// ToWatermarks builds the stream.Watermarks this config's Buffering
// section describes, for passing to input.Open/stream.Open.
func (c *Config) ToWatermarks() stream.Watermarks {
	return stream.Watermarks{
		MaxBuffered: c.Buffering.MaxBufferedBytes,
		ResumeAt:    c.Buffering.ResumeAtBytes,
	}
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// ResolveProxy implements §6's precedence rule: the block form (proxy,
// proxy_port, proxy_user, proxy_password) wins when present; otherwise
// the legacy http_proxy_* keys are used.
func (c *Config) ResolveProxy() reactor.ProxyConfig {
	if c.Proxy != "" {
		return reactor.ProxyConfig{
			Host:     c.Proxy,
			Port:     c.ProxyPort,
			User:     c.ProxyUser,
			Password: c.ProxyPassword,
		}
	}
	if c.HTTPProxyHost != "" {
		return reactor.ProxyConfig{
			Host:     c.HTTPProxyHost,
			Port:     c.HTTPProxyPort,
			User:     c.HTTPProxyUser,
			Password: c.HTTPProxyPassword,
		}
	}
	return reactor.ProxyConfig{}
}

// ToTransferOptions builds reactor.TransferOptions from the config,
// applying §4.5's defaults (10s connect timeout, 5 redirects) wherever
// the config leaves a field at its zero value.
func (c *Config) ToTransferOptions() reactor.TransferOptions {
	opts := reactor.DefaultTransferOptions()
	opts.Proxy = c.ResolveProxy()

	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	if c.ConnectTimeoutMs > 0 {
		opts.ConnectTimeout = time.Duration(c.ConnectTimeoutMs) * time.Millisecond
	}
	if c.MaxRedirects > 0 {
		opts.MaxRedirects = c.MaxRedirects
	}
	return opts
}

// MaxConcurrent returns the configured transfer concurrency bound, or 0
// (meaning "reactor picks a default") if unset.
func (c *Config) MaxConcurrent() int64 {
	if c.MaxConcurrentTransfers <= 0 {
		return 0
	}
	return int64(c.MaxConcurrentTransfers)
}
