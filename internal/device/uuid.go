package device

import (
	"errors"
	"fmt"

	"github.com/srg/blesoft/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// See bledb.NormalizeUUID for the accepted input forms.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// ErrInvalidUUID is wrapped by every ValidateUUID failure.
var ErrInvalidUUID = errors.New("invalid UUID")

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID validates that a UUID string is non-empty, hex-only and of a
// valid BLE length (16, 32 or 128 bits). Returns the normalized form.
func ValidateUUID(uuid string) (string, error) {
	if uuid == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUUID)
	}
	normalized := NormalizeUUID(uuid)
	switch len(normalized) {
	case 4, 8, 32:
	default:
		return "", fmt.Errorf("%w %q: unexpected length", ErrInvalidUUID, uuid)
	}
	for _, r := range normalized {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("%w %q: non-hex character %q", ErrInvalidUUID, uuid, r)
		}
	}
	return normalized, nil
}
