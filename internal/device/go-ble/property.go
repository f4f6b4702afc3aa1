package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blesoft/internal/device"
)

// capabilitiesOf folds the GATT property bits into the transport capability set.
// Indicate counts as Notifiable and write-without-response as Writable.
func capabilitiesOf(p ble.Property) device.Capability {
	var c device.Capability
	if p&ble.CharRead != 0 {
		c |= device.Readable
	}
	if p&(ble.CharWrite|ble.CharWriteNR) != 0 {
		c |= device.Writable
	}
	if p&(ble.CharNotify|ble.CharIndicate) != 0 {
		c |= device.Notifiable
	}
	return c
}

// writeWithoutResponse reports whether a write must go out as a command (no ATT response).
func writeWithoutResponse(p ble.Property) bool {
	return p&ble.CharWrite == 0 && p&ble.CharWriteNR != 0
}

// useIndication reports whether a subscription must use indications.
func useIndication(p ble.Property) bool {
	return p&ble.CharNotify == 0 && p&ble.CharIndicate != 0
}
