//go:build test

package testutils

import (
	"sync"

	"github.com/go-ble/ble"
	goble "github.com/srg/blesoft/internal/device/go-ble"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of goble.Client. It also exposes Disconnected()
// so tests can simulate the stack reporting a dropped link via Drop.
type MockClient struct {
	mock.Mock

	disconnected chan struct{}
	dropOnce     sync.Once
}

var _ goble.Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{disconnected: make(chan struct{})}
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Drop simulates the peripheral going away.
func (m *MockClient) Drop() {
	m.dropOnce.Do(func() { close(m.disconnected) })
}
