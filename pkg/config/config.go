package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/decoder"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/poller"
	"github.com/srg/blesoft/internal/publish"
	"github.com/srg/blesoft/internal/session"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     logrus.Level `yaml:"log_level"`
	OutputFormat string       `yaml:"output_format" default:"table"` // table, json

	Device    DeviceConfig         `yaml:"device"`
	Decoder   decoder.Bounds       `yaml:"decoder"`
	Extractor extractor.Thresholds `yaml:"extractor"`
	Poller    poller.Config        `yaml:"poller"`
	MQTT      publish.MQTTConfig   `yaml:"mqtt"`
	Metrics   MetricsConfig        `yaml:"metrics"`
}

// DeviceConfig selects and talks to the softener.
type DeviceConfig struct {
	Address        string        `yaml:"address"`  // empty: scan and pick the strongest candidate
	Keywords       []string      `yaml:"keywords"` // empty list accepts every device
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"5s"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path" default:"/metrics"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.LogLevel = logrus.InfoLevel
	cfg.Device.Keywords = append([]string(nil), session.DefaultKeywords...)
	return cfg
}

// Load reads a YAML file over the defaults. Keys absent from the file keep their
// default values. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.OutputFormat == "table" || c.OutputFormat == "json", "output_format must be table or json, got %q", c.OutputFormat)
	check(c.Device.ScanTimeout > 0, "device.scan_timeout must be positive")
	check(c.Device.ConnectTimeout > 0, "device.connect_timeout must be positive")
	check(c.Device.ReadTimeout > 0, "device.read_timeout must be positive")
	check(c.Decoder.FloatMin < c.Decoder.FloatMax, "decoder.float_min must be below decoder.float_max")
	check(c.Extractor.FlowRateMin < c.Extractor.FlowRateMax, "extractor.flow_rate_min must be below extractor.flow_rate_max")
	check(c.Poller.Interval > 0, "poller.interval must be positive")
	check(c.Poller.StaleAfter >= 0, "poller.stale_after must not be negative")
	check(c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2")
	check(c.Metrics.Addr == "" || strings.HasPrefix(c.Metrics.Path, "/"), "metrics.path must start with /")

	return errors.Join(errs...)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
