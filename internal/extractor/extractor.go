// Package extractor maps decoded candidates onto the softener's named metrics.
//
// The rules are heuristics, not a protocol: each metric slot takes the first
// plausible candidate in input order and is never overwritten afterwards.
package extractor

import (
	"time"

	"github.com/srg/blesoft/internal/catalog"
	"github.com/srg/blesoft/internal/decoder"
)

// Thresholds are the ranges a candidate must fall in to fill a slot. Ranges are exclusive.
type Thresholds struct {
	FlowRateMin     float64 `yaml:"flow_rate_min" default:"0"`
	FlowRateMax     float64 `yaml:"flow_rate_max" default:"50"`
	UsageCounterMin uint32  `yaml:"usage_counter_min" default:"100"`
}

// DefaultThresholds returns the ranges observed on the CS meter firmware.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FlowRateMin:     0,
		FlowRateMax:     50,
		UsageCounterMin: 100,
	}
}

// Reading pairs a characteristic with the candidates decoded from its payload.
type Reading struct {
	Handle     catalog.Handle
	Candidates decoder.Candidates
}

// Extractor applies Thresholds. It holds no state between calls.
type Extractor struct {
	thresholds Thresholds
}

// New returns an extractor applying t.
func New(t Thresholds) Extractor {
	return Extractor{thresholds: t}
}

// Default returns an extractor with DefaultThresholds.
func Default() Extractor {
	return New(DefaultThresholds())
}

// Thresholds returns the ranges in use.
func (e Extractor) Thresholds() Thresholds {
	return e.thresholds
}

// Extract builds a snapshot stamped with at. Readings are visited in order, so the
// caller controls precedence by ordering them (catalog order in practice).
func (e Extractor) Extract(readings []Reading, at time.Time) Snapshot {
	s := Snapshot{Timestamp: at}
	source := func(metric, uuid string) {
		if s.Sources == nil {
			s.Sources = make(map[string]string)
		}
		s.Sources[metric] = uuid
	}

	for _, r := range readings {
		c := r.Candidates

		if c.Percentage != nil {
			if s.SaltLevel == nil {
				v := *c.Percentage
				s.SaltLevel = &v
				source(MetricSaltLevel, r.Handle.UUID)
			}
			if s.BatteryLevel == nil {
				v := *c.Percentage
				s.BatteryLevel = &v
				source(MetricBatteryLevel, r.Handle.UUID)
			}
		}

		if c.Float32LE != nil && s.FlowRate == nil {
			if f := *c.Float32LE; f > e.thresholds.FlowRateMin && f < e.thresholds.FlowRateMax {
				s.FlowRate = &f
				source(MetricFlowRate, r.Handle.UUID)
			}
		}

		if c.Uint32LE != nil && s.WaterUsage == nil {
			if u := *c.Uint32LE; u > e.thresholds.UsageCounterMin {
				s.WaterUsage = &u
				source(MetricWaterUsage, r.Handle.UUID)
			}
		}
	}

	return s
}
