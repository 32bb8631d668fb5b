package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	v := NewViper()
	v.Set("probe.url", "https://seed.example/r")

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Probe.Workers)
	assert.Equal(t, 100, cfg.Probe.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Probe.Wait)
	assert.Equal(t, "redirect_chains.csv", cfg.Probe.Output)
	assert.Equal(t, DriverChromedp, cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "html_collection", cfg.Capture.Dir)
	assert.Equal(t, "off", cfg.Logging.Level)
	assert.Empty(t, cfg.Server.Addr)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
probe:
  url: https://seed.example/go
  workers: 4
  threshold: 25
  wait: 2s
  rate_per_second: 1.5
  failure_backoff: 500ms
  max_consecutive_failures: 8
browser:
  driver: ROD
  stealth: true
  nav_timeout: 12s
capture:
  enabled: true
  mode: domain
  backend: gcs
  gcs_bucket: captures
snapshot:
  postgres_dsn: postgres://localhost/chains
notify:
  project_id: proj
  topic: chains
logging:
  level: debug
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Probe.Workers)
	assert.Equal(t, 25, cfg.Probe.Threshold)
	assert.Equal(t, 2*time.Second, cfg.Probe.Wait)
	assert.InDelta(t, 1.5, cfg.Probe.RatePerSecond, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Probe.FailureBackoff)
	assert.Equal(t, 8, cfg.Probe.MaxConsecutiveFailures)
	assert.Equal(t, DriverRod, cfg.Browser.Driver)
	assert.Equal(t, 12*time.Second, cfg.Browser.NavTimeout)
	assert.Equal(t, CaptureDomain, cfg.Capture.Mode)
	assert.Equal(t, "captures", cfg.Capture.GCSBucket)
	assert.Equal(t, "postgres://localhost/chains", cfg.Snapshot.PostgresDSN)
	assert.Equal(t, "chains", cfg.Notify.Topic)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadInvalidSeedIsInvalidInput(t *testing.T) {
	t.Parallel()

	v := NewViper()
	v.Set("probe.url", "seed.example/no-scheme")
	_, err := Load(v, "")
	require.ErrorIs(t, err, redirect.ErrInvalidInput)

	_, err = Load(NewViper(), "")
	require.ErrorIs(t, err, redirect.ErrInvalidInput)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	v := NewViper()
	v.Set("probe.url", "https://seed.example")
	cfg, err := Load(v, "")
	require.NoError(t, err)
	return cfg
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"workers", func(c *Config) { c.Probe.Workers = 0 }, "probe.workers"},
		{"threshold", func(c *Config) { c.Probe.Threshold = 0 }, "probe.threshold"},
		{"wait", func(c *Config) { c.Probe.Wait = 0 }, "probe.wait"},
		{"driver", func(c *Config) { c.Browser.Driver = "lynx" }, "browser.driver"},
		{"capture mode", func(c *Config) { c.Capture.Mode = "page" }, "capture.mode"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{
			"capture gcs bucket",
			func(c *Config) { c.Capture.Enabled = true; c.Capture.Backend = "gcs" },
			"capture.gcs_bucket",
		},
		{"snapshot gcs pair", func(c *Config) { c.Snapshot.GCSBucket = "b" }, "snapshot.gcs_object"},
		{"notify pair", func(c *Config) { c.Notify.Topic = "t" }, "notify.project_id"},
		{"stealth driver", func(c *Config) { c.Browser.Stealth = true }, "browser.stealth"},
		{
			"backoff bounds",
			func(c *Config) {
				c.Probe.FailureBackoff = time.Minute
				c.Probe.FailureBackoffMax = time.Second
			},
			"probe.failure_backoff_max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("REDIRECT_PROBE_URL", "https://env.example")
	t.Setenv("REDIRECT_PROBE_WORKERS", "3")
	t.Setenv("REDIRECT_BROWSER_DRIVER", "http")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", cfg.Probe.URL)
	assert.Equal(t, 3, cfg.Probe.Workers)
	assert.Equal(t, DriverHTTP, cfg.Browser.Driver)
}
