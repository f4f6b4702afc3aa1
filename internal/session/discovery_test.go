//go:build test

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func rssi(v int) *int { return &v }

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		device   string
		want     bool
	}{
		{"default keyword", DefaultKeywords, "CS_Meter_Soft_0042", true},
		{"vendor name", DefaultKeywords, "Chandler Softener", true},
		{"case sensitive", DefaultKeywords, "CHANDLER", false},
		{"unrelated", DefaultKeywords, "Kitchen Scale", false},
		{"unnamed", DefaultKeywords, "", false},
		{"empty list accepts all", nil, "Kitchen Scale", true},
		{"empty keyword ignored", []string{""}, "Kitchen Scale", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Filter{Keywords: tt.keywords}
			assert.Equal(t, tt.want, f.Match(device.DeviceDescriptor{Name: tt.device}))
		})
	}
}

func TestDiscover(t *testing.T) {
	t.Run("keeps matching devices in transport order", func(t *testing.T) {
		transport := &testutils.MockTransport{}
		transport.On("Scan", mock.Anything, 2*time.Second).Return([]device.DeviceDescriptor{
			{Name: "CS_Meter_Soft", Address: "11:11:11:11:11:11", RSSI: rssi(-40)},
			{Name: "Kitchen Scale", Address: "22:22:22:22:22:22", RSSI: rssi(-50)},
			{Name: "CS_Meter", Address: "33:33:33:33:33:33", RSSI: rssi(-70)},
		}, nil).Once()

		found, err := Discover(context.Background(), transport, nil, 2*time.Second, Filter{Keywords: DefaultKeywords})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "11:11:11:11:11:11", found[0].Address)
		assert.Equal(t, "33:33:33:33:33:33", found[1].Address)
		transport.AssertExpectations(t)
	})

	t.Run("scan failure wrapped", func(t *testing.T) {
		transport := &testutils.MockTransport{}
		transport.On("Scan", mock.Anything, time.Second).Return(nil, device.ErrBluetoothOff).Once()

		_, err := Discover(context.Background(), transport, nil, time.Second, Filter{})
		var scanErr *ScanError
		require.ErrorAs(t, err, &scanErr)
		assert.ErrorIs(t, err, device.ErrBluetoothOff)
	})

	t.Run("nothing found is not an error", func(t *testing.T) {
		transport := &testutils.MockTransport{}
		transport.On("Scan", mock.Anything, time.Second).Return([]device.DeviceDescriptor{}, nil).Once()

		found, err := Discover(context.Background(), transport, nil, time.Second, Filter{Keywords: DefaultKeywords})
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestErrors(t *testing.T) {
	t.Run("connection error timeout classification", func(t *testing.T) {
		assert.True(t, (&ConnectionError{Address: "a", Err: device.ErrTimeout}).Timeout())
		assert.True(t, (&ConnectionError{Address: "a", Err: errors.New("connection timed out")}).Timeout())
		assert.False(t, (&ConnectionError{Address: "a", Err: errors.New("refused")}).Timeout())
	})

	t.Run("command error message", func(t *testing.T) {
		assert.Equal(t, "command failed: empty command", (&CommandError{Err: errors.New("empty command")}).Error())
		assert.Equal(t, "command to fff2 failed: boom", (&CommandError{UUID: "fff2", Err: errors.New("boom")}).Error())
	})

	t.Run("state names", func(t *testing.T) {
		assert.Equal(t, "disconnected", Disconnected.String())
		assert.Equal(t, "connected", Connected.String())
		text, err := Connecting.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, "connecting", string(text))
	})
}
