package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesoft/internal/decoder"
	"github.com/srg/blesoft/internal/device"
	goble "github.com/srg/blesoft/internal/device/go-ble"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/session"
	"github.com/srg/blesoft/pkg/config"
	"github.com/srg/blesoft/pkg/softener"
)

// newTransport builds the BLE transport commands talk through.
var newTransport = func(cfg *config.Config, logger *logrus.Logger) device.Transport {
	return goble.NewTransport(logger, cfg.Device.ReadTimeout)
}

// loadConfig returns the file named by --config, or the defaults.
// The second result is the file's log level, nil when no file was given.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Level, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	return cfg, &level, nil
}

// setup loads configuration and the logger shared by every command.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, level, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, "verbose", level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newClient wires a softener client from configuration.
func newClient(cfg *config.Config, logger *logrus.Logger) *softener.Client {
	dec := decoder.New(cfg.Decoder)
	ext := extractor.New(cfg.Extractor)
	return softener.New(newTransport(cfg, logger), logger, softener.Options{
		Keywords:    cfg.Device.Keywords,
		ScanTimeout: cfg.Device.ScanTimeout,
		Session: session.Options{
			ConnectTimeout: cfg.Device.ConnectTimeout,
			Decoder:        &dec,
			Extractor:      &ext,
		},
	})
}

// outputFormat prefers an explicit --format over the configured default.
func outputFormat(cmd *cobra.Command, cfg *config.Config) string {
	if f := cmd.Flags().Lookup("format"); f != nil && f.Changed {
		return f.Value.String()
	}
	if cfg.OutputFormat != "" {
		return cfg.OutputFormat
	}
	return "table"
}

// resolveAddress picks the positional address, then the configured one. Empty means scan.
func resolveAddress(args []string, cfg *config.Config) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Device.Address
}
