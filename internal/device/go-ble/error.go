package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blesoft/internal/device"
)

// hostErrors maps message fragments reported by the BLE host stacks (CoreBluetooth,
// BlueZ HCI) to device sentinels. The first matching fragment wins.
var hostErrors = []struct {
	fragment string
	sentinel error
}{
	{"central manager has invalid state", device.ErrBluetoothOff},
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"device already connected", device.ErrAlreadyConnected},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
	{"connection is not initialized", device.ErrNotInitialized},
	{"operation timed out", device.ErrTimeout},
}

// NormalizeError wraps a go-ble error with the matching device sentinel so callers
// can use errors.Is. The original message is kept. Errors that already carry a
// device sentinel, and unknown errors, are returned unchanged.
func NormalizeError(err error) error {
	if err == nil || isDeviceError(err) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, h := range hostErrors {
		if strings.Contains(msg, h.fragment) {
			return fmt.Errorf("%w: %v", h.sentinel, err)
		}
	}
	return err
}

func isDeviceError(err error) bool {
	var connErr *device.ConnectionError
	return errors.As(err, &connErr) || errors.Is(err, device.ErrTimeout)
}
