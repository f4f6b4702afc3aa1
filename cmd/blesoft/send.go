package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/pkg/softener"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <device-address> <hex-data>",
	Short: "Send a raw command to the softener",
	Long: `Writes raw bytes to a writable characteristic, by default the first one
the device exposes. The payload is hex; spaces, colons, dashes, commas and
0x prefixes are ignored.

Examples:
  blesoft send AA:BB:CC:DD:EE:FF "A5 01"
  blesoft send AA:BB:CC:DD:EE:FF 0xa501 --char fff2`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var sendCharUUID string

func init() {
	sendCmd.Flags().StringVar(&sendCharUUID, "char", "", "Target characteristic UUID (default: first writable)")
}

func runSend(cmd *cobra.Command, args []string) error {
	address, payload := args[0], args[1]

	// Reject bad input before touching the radio
	data, err := softener.ParseHex(payload)
	if err != nil {
		return err
	}
	if sendCharUUID != "" {
		if _, err := device.ValidateUUID(sendCharUUID); err != nil {
			return err
		}
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	client := newClient(cfg, logger)
	defer func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Debug("Disconnect failed")
		}
	}()

	progress := NewProgressPrinter(fmt.Sprintf("Sending %d bytes to %s", len(data), address), "Connecting")
	progress.Start()
	if _, err := client.Initialize(ctx, address); err != nil {
		progress.Stop()
		return err
	}
	progress.SetPhase("Writing")
	err = client.SendCommand(ctx, payload, sendCharUUID)
	progress.Stop()
	if err != nil {
		return err
	}

	target := sendCharUUID
	if target == "" {
		target = "first writable characteristic"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s sent %d bytes to %s\n", okColor("OK"), len(data), target)
	return nil
}
