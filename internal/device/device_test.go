package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapability(t *testing.T) {
	c := Readable | Notifiable

	assert.True(t, c.Has(Readable))
	assert.True(t, c.Has(Readable|Notifiable))
	assert.False(t, c.Has(Writable))
	assert.False(t, c.Has(None), "the empty set MUST never be reported as held")
	assert.True(t, c.Any(Writable|Notifiable))
	assert.False(t, None.Any(Readable|Writable|Notifiable))

	assert.Equal(t, "read,notify", c.String())
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "read,write,notify", (Notifiable | Writable | Readable).String(), "String MUST use fixed order")
}

func TestDeviceDescriptor_DisplayName(t *testing.T) {
	assert.Equal(t, "CS_Meter_Soft", DeviceDescriptor{Name: "CS_Meter_Soft", Address: "AA"}.DisplayName())
	assert.Equal(t, "AA:BB", DeviceDescriptor{Address: "AA:BB"}.DisplayName())
}

func TestConnectionError(t *testing.T) {
	wrapped := fmt.Errorf("read 2a19: %w", &ConnectionError{State: NotConnected, Msg: "link dropped"})

	assert.True(t, errors.Is(wrapped, ErrNotConnected), "errors.Is MUST match by state")
	assert.False(t, errors.Is(wrapped, ErrAlreadyConnected))
	assert.True(t, IsConnectionState(wrapped, NotConnected))
	assert.False(t, IsConnectionState(errors.New("plain"), NotConnected))
	assert.Equal(t, "not_connected: link dropped", errors.Unwrap(wrapped).Error())
	assert.Equal(t, "already_connected", ErrAlreadyConnected.Error())

	var nilErr *ConnectionError
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.False(t, nilErr.Is(ErrNotConnected))
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "device not found", (&NotFoundError{Resource: "device"}).Error())
	assert.Equal(t, `characteristic "2a19" not found`, (&NotFoundError{Resource: "characteristic", UUIDs: []string{"2a19"}}).Error())
	assert.Equal(t, `characteristic "2a19" not found in service "180f"`,
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"180f", "2a19"}}).Error())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("dial: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(fmt.Errorf("read: %w", ErrTimeout)))
	assert.True(t, IsTimeout(errors.New("operation timed out")))
	assert.False(t, IsTimeout(errors.New("refused")))
	assert.False(t, IsTimeout(nil))
}
