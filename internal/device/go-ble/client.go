package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
)

// Client is the slice of ble.Client the transport uses. ble.Client satisfies it;
// tests substitute testutils.MockClient.
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Advertisement is the part of ble.Advertisement discovery reads.
type Advertisement interface {
	LocalName() string
	RSSI() int
	Addr() ble.Addr
}

// Scanner reports every advertisement heard until ctx ends.
type Scanner interface {
	Scan(ctx context.Context, h func(Advertisement)) error
}

// hostScanner adapts ble.Device to Scanner.
type hostScanner struct {
	dev ble.Device
}

func (s hostScanner) Scan(ctx context.Context, h func(Advertisement)) error {
	return s.dev.Scan(ctx, true, func(adv ble.Advertisement) { h(adv) })
}

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newHostDevice

// Dial connects to address through the host device. It is a variable so tests can
// hand back a mock client without touching the radio.
var Dial = func(ctx context.Context, address string) (Client, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewScanner returns the host device as a Scanner. Variable for the same reason as Dial.
var NewScanner = func() (Scanner, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return hostScanner{dev: dev}, nil
}
