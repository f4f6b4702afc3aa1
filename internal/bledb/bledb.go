// Package bledb holds UUID normalization and the small slice of the Bluetooth SIG
// assigned-numbers registry this module relies on.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID (0000xxxx-0000-1000-8000-00805f9b34fb)
// once dashes are removed.
const sigBaseSuffix = "00001000800000805f9b34fb"

// Standard characteristic UUIDs (short form) read opportunistically for device information.
const (
	DeviceName       = "2a00"
	ModelNumber      = "2a24"
	SerialNumber     = "2a25"
	FirmwareRevision = "2a26"
	Manufacturer     = "2a29"
	BatteryLevel     = "2a19"
)

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180f": "Battery Service",
}

var characteristics = map[string]string{
	DeviceName:       "Device Name",
	"2a01":           "Appearance",
	BatteryLevel:     "Battery Level",
	ModelNumber:      "Model Number String",
	SerialNumber:     "Serial Number String",
	FirmwareRevision: "Firmware Revision String",
	"2a27":           "Hardware Revision String",
	"2a28":           "Software Revision String",
	Manufacturer:     "Manufacturer Name String",
}

// NormalizeUUID converts a UUID string to the internal format: lowercase, no dashes,
// no braces, no 0x prefix. Full 128-bit UUIDs built on the SIG base are shortened to
// their 16-bit form, so "00002a19-0000-1000-8000-00805f9b34fb" becomes "2a19".
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "{")
	u = strings.TrimSuffix(u, "}")
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// LookupService returns the SIG name of a service, or "" when unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the SIG name of a characteristic, or "" when unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// IsBatteryLevel reports whether uuid names the standard Battery Level characteristic.
func IsBatteryLevel(uuid string) bool {
	return strings.HasSuffix(NormalizeUUID(uuid), BatteryLevel)
}
