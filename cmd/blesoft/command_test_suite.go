//go:build test

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	goble "github.com/srg/blesoft/internal/device/go-ble"
	"github.com/srg/blesoft/internal/testutils"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
	TestDeviceAddress3 = "00:00:00:00:00:03"
)

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// All cmd/blesoft test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

func (s *CommandTestSuite) SetupSuite() {
	s.MockBLEPeripheralSuite.SetupSuite()
	color.NoColor = true
}

func (s *CommandTestSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()
	resetFlags(rootCmd)
}

// Advertise makes the next scan report advs.
func (s *CommandTestSuite) Advertise(advs ...testutils.ScanAdvertisement) {
	goble.NewScanner = func() (goble.Scanner, error) {
		return &testutils.FakeScanner{Advertisements: advs}, nil
	}
}

// AdvertiseNearby advertises two meters and an unrelated device.
func (s *CommandTestSuite) AdvertiseNearby() {
	s.Advertise(
		testutils.ScanAdvertisement{Name: "CS_Meter_Soft", Address: TestDeviceAddress1, Signal: -60},
		testutils.ScanAdvertisement{Name: "Kitchen Scale", Address: TestDeviceAddress2, Signal: -40},
		testutils.ScanAdvertisement{Name: "CS_Meter", Address: TestDeviceAddress3, Signal: -50},
	)
}

// WriteConfig stores a YAML configuration in a temp dir and returns its path.
func (s *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(s.T().TempDir(), "blesoft.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config file MUST be written")
	return path
}

// ExecuteCommand runs the root command with args, returns combined output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags restores every flag of cmd and its children to its default, so
// values from one test do not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
