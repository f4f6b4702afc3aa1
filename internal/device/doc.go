// Package device defines the transport capability the rest of the module consumes:
// scanning for peripherals, connecting, enumerating characteristics with their
// capability flags, and raw read/write/subscribe by characteristic UUID.
//
// The package holds no BLE stack code. The go-ble backed implementation lives in
// the go-ble subpackage; tests substitute testutils.MockTransport.
package device
