package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/internal/session"
	"github.com/srg/blesoft/pkg/softener"
)

// FormatUserError turns library errors into a single line with a hint where one helps.
func FormatUserError(err error) string {
	var (
		connErr *session.ConnectionError
		cmdErr  *session.CommandError
		nf      *device.NotFoundError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable the adapter and try again"
	case errors.Is(err, softener.ErrNoDevice):
		return fmt.Sprintf("%v; pass the device address explicitly or run 'blesoft scan --all'", err)
	case errors.As(err, &connErr) && connErr.Timeout():
		return fmt.Sprintf("timed out connecting to %s; make sure the meter is in range and not paired with another app", connErr.Address)
	case errors.Is(err, softener.ErrInvalidHex):
		return fmt.Sprintf("%v (expected hex bytes such as 'A5 01' or '0xa501')", err)
	case errors.Is(err, device.ErrInvalidUUID):
		return fmt.Sprintf("%v (expected a 16, 32 or 128-bit UUID such as 'fff2')", err)
	case errors.As(err, &cmdErr) && errors.As(err, &nf):
		return fmt.Sprintf("characteristic %s is not present on the device", cmdErr.UUID)
	case errors.Is(err, session.ErrConnectionLost):
		return fmt.Sprintf("%v; the device went out of range or closed the link", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%v (operation timed out)", err)
	}
	return err.Error()
}
