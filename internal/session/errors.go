package session

import (
	"errors"
	"fmt"

	"github.com/srg/blesoft/internal/device"
)

var (
	// ErrInvalidState is returned when an operation is issued from a state that does not allow it.
	ErrInvalidState = errors.New("invalid session state")

	// ErrNoWritableCharacteristic is returned when a command has no target: the catalog holds no writable handle.
	ErrNoWritableCharacteristic = errors.New("no writable characteristic")

	// ErrNotWritable is returned when a command names a characteristic without write capability.
	ErrNotWritable = errors.New("characteristic is not writable")

	// ErrConnectionLost indicates the link dropped while the session believed it was connected.
	// The session is Disconnected by the time this is returned.
	ErrConnectionLost = errors.New("connection lost")
)

// ScanError reports a failed discovery scan.
type ScanError struct {
	Err error
}

func (e *ScanError) Error() string { return fmt.Sprintf("scan failed: %v", e.Err) }
func (e *ScanError) Unwrap() error { return e.Err }

// ConnectionError reports a failed connect or handshake. The session is Disconnected afterwards.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s failed: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Timeout reports whether the attempt ran out of time rather than being refused.
func (e *ConnectionError) Timeout() bool {
	return device.IsTimeout(e.Err)
}

// ReadError reports a failed read of one characteristic. ReadAll logs and skips these.
type ReadError struct {
	UUID string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.UUID, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// CommandError reports a command that could not be delivered.
type CommandError struct {
	UUID string
	Err  error
}

func (e *CommandError) Error() string {
	if e.UUID == "" {
		return fmt.Sprintf("command failed: %v", e.Err)
	}
	return fmt.Sprintf("command to %s failed: %v", e.UUID, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
