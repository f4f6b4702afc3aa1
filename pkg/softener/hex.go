package softener

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidHex is returned by ParseHex for input that is not a byte string.
var ErrInvalidHex = errors.New("invalid hex data")

var hexSeparators = strings.NewReplacer(" ", "", "\t", "", ":", "", "-", "", ",", "")

// ParseHex decodes a command written as hex. Bytes may be separated by spaces,
// colons, dashes or commas and may carry a 0x prefix: "01 02", "01:02",
// "0x01 0x02" and "0102" are equivalent.
func ParseHex(s string) ([]byte, error) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = strings.ReplaceAll(cleaned, "0x", "")
	cleaned = hexSeparators.Replace(cleaned)

	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidHex)
	}
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidHex, s, err)
	}
	return data, nil
}
