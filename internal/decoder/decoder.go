// Package decoder turns opaque characteristic payloads into typed candidate
// interpretations. Every interpretation is attempted independently; none of them
// is preferred over another and a failed attempt only means that field is absent.
package decoder

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/srg/blesoft/internal/bledb"
)

// Bounds are the sanity filters applied to the wide numeric interpretations.
// Ranges are exclusive.
type Bounds struct {
	FloatMin   float64 `yaml:"float_min" default:"-1000"`
	FloatMax   float64 `yaml:"float_max" default:"10000"`
	Uint32Max  uint32  `yaml:"uint32_max" default:"1000000"`
	PercentMax uint8   `yaml:"percent_max" default:"100"`
}

// DefaultBounds returns the filters tuned for the softener meter.
func DefaultBounds() Bounds {
	return Bounds{
		FloatMin:   -1000,
		FloatMax:   10000,
		Uint32Max:  1_000_000,
		PercentMax: 100,
	}
}

// Decoder is a configured, stateless decoder. The zero value is not useful; use New or Default.
type Decoder struct {
	bounds Bounds
}

// New returns a decoder applying b.
func New(b Bounds) Decoder {
	return Decoder{bounds: b}
}

// Default returns a decoder with DefaultBounds.
func Default() Decoder {
	return New(DefaultBounds())
}

// Bounds returns the filters in use.
func (d Decoder) Bounds() Bounds {
	return d.bounds
}

// Decode interprets b with the default bounds. uuid is only consulted for the
// battery-specific interpretation.
func Decode(uuid string, b []byte) Candidates {
	return Default().Decode(uuid, b)
}

// Decode interprets b. It never fails; short or implausible payloads yield fewer candidates.
func (d Decoder) Decode(uuid string, b []byte) Candidates {
	var c Candidates

	if len(b) >= 4 {
		c.Float32LE = d.float32LE(b)
		if v := binary.LittleEndian.Uint32(b); v < d.bounds.Uint32Max {
			c.Uint32LE = ptr(v)
		}
	}

	if len(b) >= 2 {
		c.Uint16LE = ptr(binary.LittleEndian.Uint16(b))
	}

	if len(b) >= 1 {
		c.Uint8 = ptr(b[0])
		if b[0] <= d.bounds.PercentMax {
			c.Percentage = ptr(b[0])
		}
	}

	c.ASCII = printableASCII(b)

	if len(b) == 8 {
		c.DualUint32LE = &[2]uint32{
			binary.LittleEndian.Uint32(b[0:4]),
			binary.LittleEndian.Uint32(b[4:8]),
		}
	}

	if len(b) == 1 && bledb.IsBatteryLevel(uuid) {
		c.BatteryPercentage = ptr(b[0])
	}

	return c
}

// float32LE reads the first four bytes as an IEEE-754 float, keeps it only inside
// the bounds and rounds it to two decimals. NaN and infinities fail the bounds check.
func (d Decoder) float32LE(b []byte) *float64 {
	f := float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	if !(f > d.bounds.FloatMin && f < d.bounds.FloatMax) {
		return nil
	}
	return ptr(math.Round(f*100) / 100)
}

// isASCIISpace also treats the file, group, record and unit separators (0x1c-0x1f) as whitespace.
func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r', 0x1c, 0x1d, 0x1e, 0x1f:
		return true
	}
	return false
}

// printableASCII returns the whitespace-trimmed text of b when every byte is
// 7-bit and the trimmed text is non-empty and fully printable.
func printableASCII(b []byte) *string {
	for _, x := range b {
		if x > 0x7f {
			return nil
		}
	}
	s := strings.TrimFunc(string(b), isASCIISpace)
	if s == "" {
		return nil
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return nil
		}
	}
	return &s
}
