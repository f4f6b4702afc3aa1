package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/internal/session"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover nearby water softeners",
	Long: `Scans for BLE advertisements and lists the devices whose advertised name
contains one of the softener keywords, strongest signal first.

Examples:
  # Scan for 10 seconds with the default keywords
  blesoft scan

  # List every advertising device, not only softeners
  blesoft scan --all --duration 5s

  # Match a custom name fragment
  blesoft scan --keyword MyMeter`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanKeywords []string
	scanAll      bool
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	scanCmd.Flags().StringSliceVarP(&scanKeywords, "keyword", "k", nil, "Advertised-name fragments to match (replaces the defaults)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show every advertising device")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	format := outputFormat(cmd, cfg)
	if err := validateFormat(format); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := cfg.Device.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	filter := session.Filter{Keywords: cfg.Device.Keywords}
	switch {
	case scanAll:
		filter.Keywords = nil
	case len(scanKeywords) > 0:
		filter.Keywords = scanKeywords
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewCountdownProgressPrinter("Scanning for softeners", "Scanning", duration)
	progress.Start()
	devices, err := session.Discover(ctx, newTransport(cfg, logger), logger, duration, filter)
	progress.Stop()
	if err != nil {
		return err
	}

	if devices == nil {
		devices = []device.DeviceDescriptor{}
	}
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), devices)
	}
	return displayDevices(cmd.OutOrStdout(), devices)
}

// signalContext derives a context cancelled by Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// isInterrupt reports whether err only says the run was cut short on purpose.
func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
