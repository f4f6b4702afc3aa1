//go:build test

package testutils

import (
	"context"
	"time"

	"github.com/srg/blesoft/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of device.Transport.
type MockTransport struct {
	mock.Mock
}

var _ device.Transport = (*MockTransport)(nil)

func (m *MockTransport) Scan(ctx context.Context, duration time.Duration) ([]device.DeviceDescriptor, error) {
	args := m.Called(ctx, duration)
	found, _ := args.Get(0).([]device.DeviceDescriptor)
	return found, args.Error(1)
}

func (m *MockTransport) Connect(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}

func (m *MockTransport) Enumerate() ([]device.CharacteristicInfo, error) {
	args := m.Called()
	infos, _ := args.Get(0).([]device.CharacteristicInfo)
	return infos, args.Error(1)
}

func (m *MockTransport) Read(ctx context.Context, uuid string) ([]byte, error) {
	args := m.Called(ctx, uuid)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockTransport) Write(ctx context.Context, uuid string, data []byte) error {
	return m.Called(ctx, uuid, data).Error(0)
}

func (m *MockTransport) Subscribe(uuid string, onNotify func([]byte)) error {
	return m.Called(uuid, onNotify).Error(0)
}

func (m *MockTransport) Disconnect() error {
	return m.Called().Error(0)
}

// Char is shorthand for building enumeration results.
func Char(service, uuid string, caps device.Capability) device.CharacteristicInfo {
	return device.CharacteristicInfo{Service: service, UUID: uuid, Capabilities: caps}
}
