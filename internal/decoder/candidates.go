package decoder

// Candidates holds every interpretation of one payload that survived its filter.
// A nil field means the interpretation is absent: either the payload was too
// short or the value failed its sanity range.
type Candidates struct {
	Float32LE         *float64   `json:"float32_le,omitempty"`
	Uint32LE          *uint32    `json:"uint32_le,omitempty"`
	Uint16LE          *uint16    `json:"uint16_le,omitempty"`
	Uint8             *uint8     `json:"uint8,omitempty"`
	Percentage        *uint8     `json:"percentage,omitempty"`
	ASCII             *string    `json:"ascii,omitempty"`
	DualUint32LE      *[2]uint32 `json:"dual_uint32_le,omitempty"`
	BatteryPercentage *uint8     `json:"battery_percentage,omitempty"`
}

// Interpretation names, in the order Present reports them.
const (
	KeyFloat32LE         = "float32_le"
	KeyUint32LE          = "uint32_le"
	KeyUint16LE          = "uint16_le"
	KeyUint8             = "uint8"
	KeyPercentage        = "percentage"
	KeyASCII             = "ascii"
	KeyDualUint32LE      = "dual_uint32_le"
	KeyBatteryPercentage = "battery_percentage"
)

// Present lists the names of the interpretations that survived.
func (c Candidates) Present() []string {
	var keys []string
	add := func(ok bool, key string) {
		if ok {
			keys = append(keys, key)
		}
	}
	add(c.Float32LE != nil, KeyFloat32LE)
	add(c.Uint32LE != nil, KeyUint32LE)
	add(c.Uint16LE != nil, KeyUint16LE)
	add(c.Uint8 != nil, KeyUint8)
	add(c.Percentage != nil, KeyPercentage)
	add(c.ASCII != nil, KeyASCII)
	add(c.DualUint32LE != nil, KeyDualUint32LE)
	add(c.BatteryPercentage != nil, KeyBatteryPercentage)
	return keys
}

// Empty reports whether no interpretation survived.
func (c Candidates) Empty() bool {
	return len(c.Present()) == 0
}

func ptr[T any](v T) *T {
	return &v
}
