package device

import (
	"context"
	"strings"
	"time"
)

// Capability is the set of GATT operations a characteristic supports.
type Capability uint8

const (
	Readable Capability = 1 << iota
	Writable
	Notifiable
)

// None is the empty capability set. Characteristics reporting it are still cataloged.
const None Capability = 0

// Has reports whether every bit of other is present in c.
func (c Capability) Has(other Capability) bool {
	return other != 0 && c&other == other
}

// Any reports whether at least one bit of other is present in c.
func (c Capability) Any(other Capability) bool {
	return c&other != 0
}

// String renders the set as "read,write,notify" in fixed order, or "none".
func (c Capability) String() string {
	var parts []string
	if c&Readable != 0 {
		parts = append(parts, "read")
	}
	if c&Writable != 0 {
		parts = append(parts, "write")
	}
	if c&Notifiable != 0 {
		parts = append(parts, "notify")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// MarshalText lets capability sets render as strings in JSON and YAML output.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DeviceDescriptor is a peripheral seen during a scan.
//
//nolint:revive // DeviceDescriptor reads better than Descriptor at call sites outside the package
type DeviceDescriptor struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
	RSSI    *int   `json:"rssi,omitempty"`
}

// DisplayName returns the advertised name, falling back to the address.
func (d DeviceDescriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// CharacteristicInfo is one enumerated characteristic as reported by the transport.
type CharacteristicInfo struct {
	Service      string
	UUID         string
	Capabilities Capability
}

// Transport is the narrow BLE capability the session consumes. Implementations
// serialize GATT operations per connection; callers never issue them concurrently.
type Transport interface {
	// Scan listens for advertisements for the given duration and returns the unique
	// peripherals seen. Cancelling ctx ends the scan early with the results so far.
	Scan(ctx context.Context, duration time.Duration) ([]DeviceDescriptor, error)

	// Connect dials the peripheral and discovers its GATT profile. ctx bounds the attempt.
	Connect(ctx context.Context, address string) error

	// Enumerate lists every characteristic of every service in discovery order.
	Enumerate() ([]CharacteristicInfo, error)

	Read(ctx context.Context, uuid string) ([]byte, error)
	Write(ctx context.Context, uuid string, data []byte) error

	// Subscribe registers onNotify for notifications or indications of uuid.
	// onNotify runs on the transport's goroutine and must not block.
	Subscribe(uuid string, onNotify func([]byte)) error

	// Disconnect tears down the link. Calling it without a connection is a no-op.
	Disconnect() error
}
