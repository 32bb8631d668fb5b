// Package config loads and validates probe configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// EnvPrefix namespaces environment overrides, e.g. REDIRECT_PROBE_WORKERS=4.
const EnvPrefix = "REDIRECT"

// Browser drivers.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
	DriverHTTP     = "http"
)

// Capture modes.
const (
	CaptureChain  = "chain"
	CaptureDomain = "domain"
)

// Config captures all probe configuration knobs loaded via Viper.
type Config struct {
	Probe    ProbeConfig    `mapstructure:"probe"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ProbeConfig governs the sampling loop.
type ProbeConfig struct {
	URL     string        `mapstructure:"url"`
	Workers int           `mapstructure:"workers"   validate:"gte=1"`
	Output  string        `mapstructure:"output"    validate:"required"`
	Wait    time.Duration `mapstructure:"wait"      validate:"gt=0"`
	// Threshold is the number of consecutive duplicates that ends the run.
	Threshold              int           `mapstructure:"threshold"                validate:"gte=1"`
	MaxHops                int           `mapstructure:"max_hops"                 validate:"gte=0"`
	Resume                 bool          `mapstructure:"resume"`
	RatePerSecond          float64       `mapstructure:"rate_per_second"          validate:"gte=0"`
	RateBurst              int           `mapstructure:"rate_burst"               validate:"gte=0"`
	FailureBackoff         time.Duration `mapstructure:"failure_backoff"          validate:"gte=0"`
	FailureBackoffMax      time.Duration `mapstructure:"failure_backoff_max"      validate:"gte=0"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" validate:"gte=0"`
}

// BrowserConfig selects and tunes the navigation driver.
type BrowserConfig struct {
	Driver          string        `mapstructure:"driver"            validate:"oneof=chromedp rod http"`
	Path            string        `mapstructure:"path"`
	Headless        bool          `mapstructure:"headless"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"       validate:"gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval"     validate:"gte=0"`
	MaxParallel     int           `mapstructure:"max_parallel"      validate:"gte=0"`
	UserAgent       string        `mapstructure:"user_agent"`
	RandomUserAgent bool          `mapstructure:"random_user_agent"`
	Stealth         bool          `mapstructure:"stealth"`
}

// CaptureConfig controls first-seen page capture.
type CaptureConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mode      string `mapstructure:"mode"       validate:"oneof=chain domain"`
	Backend   string `mapstructure:"backend"    validate:"oneof=local memory gcs"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// SnapshotConfig adds mirrors of the chain table beyond the local file.
type SnapshotConfig struct {
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSObject     string `mapstructure:"gcs_object"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// NotifyConfig holds Pub/Sub settings for new-chain notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status server. Empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize  int           `mapstructure:"buffer_size"  validate:"gte=0"`
	BatchEvents int           `mapstructure:"batch_events" validate:"gte=0"`
	BatchWait   time.Duration `mapstructure:"batch_wait"   validate:"gte=0"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout" validate:"gte=0"`
}

// LoggingConfig selects encoder, level and optional file output.
type LoggingConfig struct {
	Level       string `mapstructure:"level"        validate:"oneof=debug info warn error off"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"  validate:"gte=0"`
	MaxBackups  int    `mapstructure:"max_backups"  validate:"gte=0"`
}

// NewViper returns a Viper instance with defaults and environment overrides
// applied. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every key so env overrides resolve during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("probe.url", "")
	v.SetDefault("probe.workers", 10)
	v.SetDefault("probe.output", "redirect_chains.csv")
	v.SetDefault("probe.wait", 5*time.Second)
	v.SetDefault("probe.threshold", 100)
	v.SetDefault("probe.max_hops", 50)
	v.SetDefault("probe.resume", false)
	v.SetDefault("probe.rate_per_second", 0.0)
	v.SetDefault("probe.rate_burst", 1)
	v.SetDefault("probe.failure_backoff", time.Duration(0))
	v.SetDefault("probe.failure_backoff_max", 30*time.Second)
	v.SetDefault("probe.max_consecutive_failures", 0)

	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.poll_interval", 100*time.Millisecond)
	v.SetDefault("browser.max_parallel", 0)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.random_user_agent", false)
	v.SetDefault("browser.stealth", false)

	v.SetDefault("capture.enabled", false)
	v.SetDefault("capture.mode", CaptureChain)
	v.SetDefault("capture.backend", "local")
	v.SetDefault("capture.dir", "html_collection")
	v.SetDefault("capture.gcs_bucket", "")
	v.SetDefault("capture.gcs_prefix", "")

	v.SetDefault("snapshot.gcs_bucket", "")
	v.SetDefault("snapshot.gcs_object", "")
	v.SetDefault("snapshot.postgres_dsn", "")
	v.SetDefault("snapshot.postgres_table", "redirect_chains")

	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")

	v.SetDefault("server.addr", "")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_events", 256)
	v.SetDefault("progress.batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)

	v.SetDefault("logging.level", "off")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
}

// Load reads the optional config file at path into v, then unmarshals and
// validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Browser.Driver = strings.ToLower(strings.TrimSpace(c.Browser.Driver))
	c.Capture.Mode = strings.ToLower(strings.TrimSpace(c.Capture.Mode))
	c.Capture.Backend = strings.ToLower(strings.TrimSpace(c.Capture.Backend))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Probe.URL = strings.TrimSpace(c.Probe.URL)
}

var validate = newValidator()

// newValidator reports fields by their config key rather than Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate enforces field limits and cross-field rules. A bad seed URL is
// reported as redirect.ErrInvalidInput.
func (c Config) Validate() error {
	if err := redirect.ValidateSeed(c.Probe.URL); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", describe(err))
	}
	if c.Capture.Enabled && c.Capture.Backend == "gcs" && c.Capture.GCSBucket == "" {
		return errors.New("capture.gcs_bucket must be set when capture.backend is gcs")
	}
	if c.Capture.Enabled && c.Capture.Backend == "local" && c.Capture.Dir == "" {
		return errors.New("capture.dir must be set when capture.backend is local")
	}
	if (c.Snapshot.GCSBucket == "") != (c.Snapshot.GCSObject == "") {
		return errors.New("snapshot.gcs_bucket and snapshot.gcs_object must be set together")
	}
	if (c.Notify.ProjectID == "") != (c.Notify.Topic == "") {
		return errors.New("notify.project_id and notify.topic must be set together")
	}
	if c.Browser.Stealth && c.Browser.Driver != DriverRod {
		return errors.New("browser.stealth requires browser.driver rod")
	}
	if c.Probe.FailureBackoff > 0 && c.Probe.FailureBackoffMax > 0 && c.Probe.FailureBackoffMax < c.Probe.FailureBackoff {
		return errors.New("probe.failure_backoff_max must be >= probe.failure_backoff")
	}
	return nil
}

// describe flattens validator errors into config key names.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", key, fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
