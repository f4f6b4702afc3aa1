package extractor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/srg/blesoft/internal/catalog"
	"github.com/srg/blesoft/internal/decoder"
	"github.com/srg/blesoft/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func reading(uuid string, payload ...byte) Reading {
	return Reading{
		Handle:     catalog.Handle{UUID: uuid, Capabilities: device.Readable},
		Candidates: decoder.Decode(uuid, payload),
	}
}

func TestExtract_SinglePercentageFillsSaltAndBattery(t *testing.T) {
	// GOAL: Verify one percentage candidate fills both salt and battery and nothing else
	//
	// TEST SCENARIO: Single reading [0x32] → salt 50, battery 50, every other slot nil

	s := Default().Extract([]Reading{reading("fff1", 0x32)}, at)

	require.NotNil(t, s.SaltLevel)
	assert.Equal(t, uint8(50), *s.SaltLevel)
	require.NotNil(t, s.BatteryLevel)
	assert.Equal(t, uint8(50), *s.BatteryLevel)
	assert.Nil(t, s.FlowRate)
	assert.Nil(t, s.WaterUsage)
	assert.Nil(t, s.HardnessSetting)
	assert.Nil(t, s.RegenerationStatus)
	assert.Nil(t, s.SystemStatus)
	assert.Nil(t, s.LastRegeneration)
	assert.Equal(t, at, s.Timestamp)
	assert.Equal(t, map[string]string{MetricSaltLevel: "fff1", MetricBatteryLevel: "fff1"}, s.Sources)
	assert.Equal(t, 2, s.Known())
}

func TestExtract_FirstMatchWins(t *testing.T) {
	// GOAL: Verify precedence follows input order, not UUID order
	//
	// TEST SCENARIO: "ffff" (salt 10) precedes "0001" (salt 90) → salt 10; reversed input → salt 90

	high := reading("ffff", 10)
	low := reading("0001", 90)

	s := Default().Extract([]Reading{high, low}, at)
	require.NotNil(t, s.SaltLevel)
	assert.Equal(t, uint8(10), *s.SaltLevel, "first reading in input order MUST win")
	assert.Equal(t, uint8(10), *s.BatteryLevel)

	s = Default().Extract([]Reading{low, high}, at)
	assert.Equal(t, uint8(90), *s.SaltLevel, "reordering input MUST change the winner")
}

func TestExtract_FlowRateAndUsage(t *testing.T) {
	flow := reading("fff2", 0x00, 0x00, 0x20, 0x40)   // 2.5
	usage := reading("fff3", 0x39, 0x30, 0x00, 0x00)  // 12345
	small := reading("fff4", 0x64, 0x00, 0x00, 0x00)  // 100, too small for a counter
	second := reading("fff5", 0x00, 0x00, 0x40, 0x40) // 3.0, later flow candidate

	s := Default().Extract([]Reading{small, flow, usage, second}, at)

	require.NotNil(t, s.FlowRate)
	assert.Equal(t, 2.5, *s.FlowRate, "later flow candidates MUST NOT overwrite")
	require.NotNil(t, s.WaterUsage)
	assert.Equal(t, uint32(12345), *s.WaterUsage, "uint32 of 100 MUST be ignored for usage")
	assert.Equal(t, "fff2", s.Sources[MetricFlowRate])
	assert.Equal(t, "fff3", s.Sources[MetricWaterUsage])
	assert.Equal(t, uint8(100), *s.SaltLevel, "first byte 100 is a percentage")
}

func TestExtract_FlowRateRangeExclusive(t *testing.T) {
	zero := reading("fff1", 0x00, 0x00, 0x00, 0x00)  // 0.0
	fifty := reading("fff2", 0x00, 0x00, 0x48, 0x42) // 50.0
	s := Default().Extract([]Reading{zero, fifty}, at)
	assert.Nil(t, s.FlowRate, "0 and 50 MUST both be outside the flow range")
}

func TestExtract_Idempotent(t *testing.T) {
	in := []Reading{
		reading("fff1", 0x00, 0x00, 0x20, 0x40),
		reading("fff2", 0x39, 0x30, 0x00, 0x00),
		reading("2a19", 77),
	}
	e := Default()
	assert.Equal(t, e.Extract(in, at), e.Extract(in, at), "identical input MUST yield identical snapshots")
}

func TestExtract_CustomThresholds(t *testing.T) {
	e := New(Thresholds{FlowRateMin: 1, FlowRateMax: 2, UsageCounterMin: 20000})
	s := e.Extract([]Reading{
		reading("fff1", 0x00, 0x00, 0x20, 0x40), // 2.5, outside (1,2)
		reading("fff2", 0x39, 0x30, 0x00, 0x00), // 12345, below 20000
		reading("fff3", 0x00, 0x00, 0xc0, 0x3f), // 1.5
	}, at)

	require.NotNil(t, s.FlowRate)
	assert.Equal(t, 1.5, *s.FlowRate)
	assert.Nil(t, s.WaterUsage)
	assert.Equal(t, Thresholds{FlowRateMin: 1, FlowRateMax: 2, UsageCounterMin: 20000}, e.Thresholds())
}

func TestExtract_EmptyInput(t *testing.T) {
	s := Default().Extract(nil, at)
	assert.Equal(t, 0, s.Known())
	assert.Nil(t, s.Sources)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"salt_level": null, "battery_level": null, "flow_rate": null, "water_usage": null,
		"hardness_setting": null, "regeneration_status": null, "system_status": null,
		"last_regeneration": null, "timestamp": "2026-03-01T12:00:00Z"
	}`, string(raw), "unknown slots MUST render as null")
}

func TestSnapshot_Gauges(t *testing.T) {
	s := Default().Extract([]Reading{reading("fff1", 0x39, 0x30, 0x00, 0x00)}, at)
	g := s.Gauges()

	require.Len(t, g, 5)
	assert.Equal(t, MetricSaltLevel, g[0].Name)
	require.NotNil(t, g[0].Value)
	assert.Equal(t, 57.0, *g[0].Value)
	assert.Equal(t, MetricWaterUsage, g[3].Name)
	require.NotNil(t, g[3].Value)
	assert.Equal(t, 12345.0, *g[3].Value)
	assert.Nil(t, g[2].Value)
	assert.Nil(t, g[4].Value)
}
