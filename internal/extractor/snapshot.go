package extractor

import "time"

// Metric names, shared by publishers and CLI output.
const (
	MetricSaltLevel          = "salt_level"
	MetricBatteryLevel       = "battery_level"
	MetricFlowRate           = "flow_rate"
	MetricWaterUsage         = "water_usage"
	MetricHardnessSetting    = "hardness_setting"
	MetricRegenerationStatus = "regeneration_status"
	MetricSystemStatus       = "system_status"
	MetricLastRegeneration   = "last_regeneration"
)

// Snapshot is the metric set of one poll cycle. Every slot is optional: nil means
// unknown and is rendered as null, never as zero.
type Snapshot struct {
	SaltLevel          *uint8     `json:"salt_level"`
	BatteryLevel       *uint8     `json:"battery_level"`
	FlowRate           *float64   `json:"flow_rate"`
	WaterUsage         *uint32    `json:"water_usage"`
	HardnessSetting    *float64   `json:"hardness_setting"`
	RegenerationStatus *string    `json:"regeneration_status"`
	SystemStatus       *string    `json:"system_status"`
	LastRegeneration   *time.Time `json:"last_regeneration"`
	Timestamp          time.Time  `json:"timestamp"`

	// Sources maps a filled metric to the characteristic UUID it came from.
	Sources map[string]string `json:"sources,omitempty"`
}

// Gauge is a numeric metric slot.
type Gauge struct {
	Name  string
	Unit  string
	Value *float64
}

// Gauges returns the numeric slots in a fixed order, with nil values for unknown ones.
func (s Snapshot) Gauges() []Gauge {
	return []Gauge{
		{Name: MetricSaltLevel, Unit: "percent", Value: widen(s.SaltLevel)},
		{Name: MetricBatteryLevel, Unit: "percent", Value: widen(s.BatteryLevel)},
		{Name: MetricFlowRate, Unit: "gpm", Value: s.FlowRate},
		{Name: MetricWaterUsage, Unit: "gallons", Value: widen(s.WaterUsage)},
		{Name: MetricHardnessSetting, Unit: "gpg", Value: s.HardnessSetting},
	}
}

// Known returns how many slots hold a value.
func (s Snapshot) Known() int {
	n := 0
	for _, g := range s.Gauges() {
		if g.Value != nil {
			n++
		}
	}
	if s.RegenerationStatus != nil {
		n++
	}
	if s.SystemStatus != nil {
		n++
	}
	if s.LastRegeneration != nil {
		n++
	}
	return n
}

func widen[T uint8 | uint32](v *T) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
