package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blesoft/pkg/softener"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [device-address]",
	Short: "Read a status snapshot from the softener",
	Long: `Connects to the softener, reads every readable characteristic once and
prints the extracted metrics.

Without an address the configured device is used; if none is configured the
strongest advertising softener is picked.

Examples:
  blesoft status AA:BB:CC:DD:EE:FF
  blesoft status --raw
  blesoft status AA:BB:CC:DD:EE:FF --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var (
	statusRaw    bool
	statusFormat string
)

func init() {
	statusCmd.Flags().BoolVar(&statusRaw, "raw", false, "Also print raw readings and decoded candidates")
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "table", "Output format (table, json)")
}

// statusOutput is the JSON document printed by status --format json.
type statusOutput struct {
	Device *softener.InitResult `json:"device"`
	Status *softener.Status     `json:"status"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	format := outputFormat(cmd, cfg)
	if err := validateFormat(format); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	address := resolveAddress(args, cfg)
	client := newClient(cfg, logger)
	defer func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Debug("Disconnect failed")
		}
	}()

	progress := NewProgressPrinter(progressTarget("Reading status", address), "Connecting")
	progress.Start()
	conn, err := client.Initialize(ctx, address)
	if err != nil {
		progress.Stop()
		return err
	}
	progress.SetPhase("Reading")
	st, err := client.GetStatus(ctx)
	progress.Stop()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, statusOutput{Device: conn, Status: st})
	}

	displayDeviceInfo(out, conn.DeviceInfo)
	fmt.Fprintf(out, "%s %d of %d characteristics\n\n", labelColor("Readings:    "), len(st.Readings), conn.Characteristics)
	if err := displaySnapshot(out, st.Snapshot); err != nil {
		return err
	}
	if statusRaw {
		fmt.Fprintln(out)
		return displayReadings(out, st.Readings)
	}
	return nil
}

func progressTarget(action, address string) string {
	if address == "" {
		return action + " from nearest softener"
	}
	return fmt.Sprintf("%s from %s", action, address)
}
