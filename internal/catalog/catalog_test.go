package catalog

import (
	"testing"

	"github.com/srg/blesoft/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func softenerProfile() []device.CharacteristicInfo {
	return []device.CharacteristicInfo{
		{Service: "0000180a-0000-1000-8000-00805f9b34fb", UUID: "00002A29-0000-1000-8000-00805F9B34FB", Capabilities: device.Readable},
		{Service: "fff0", UUID: "fff1", Capabilities: device.Readable | device.Notifiable},
		{Service: "fff0", UUID: "fff2", Capabilities: device.Writable},
		{Service: "fff0", UUID: "fff3", Capabilities: device.None},
		{Service: "fff0", UUID: "fff4", Capabilities: device.Notifiable},
		{Service: "fff0", UUID: "fff5", Capabilities: device.Writable | device.Readable},
	}
}

func TestBuild_KeepsEveryCharacteristicInOrder(t *testing.T) {
	// GOAL: Verify the catalog keeps all characteristics, including capability-less ones, in discovery order
	//
	// TEST SCENARIO: Build from six characteristics → six handles in input order with normalized UUIDs

	c := Build(softenerProfile())

	require.Equal(t, 6, c.Len(), "no characteristic MUST be dropped")
	var uuids []string
	for _, h := range c.Handles() {
		uuids = append(uuids, h.UUID)
	}
	assert.Equal(t, []string{"2a29", "fff1", "fff2", "fff3", "fff4", "fff5"}, uuids)

	h, ok := c.Get("0x2A29")
	require.True(t, ok, "lookup MUST accept any UUID form")
	assert.Equal(t, "180a", h.Service)
	assert.Equal(t, "Manufacturer Name String", h.Name)

	bare, ok := c.Get("fff3")
	require.True(t, ok)
	assert.Equal(t, device.None, bare.Capabilities)
	assert.False(t, bare.Readable())
	assert.False(t, bare.Writable())
}

func TestCatalog_CapabilityViews(t *testing.T) {
	c := Build(softenerProfile())

	var readable []string
	for _, h := range c.Readable() {
		readable = append(readable, h.UUID)
	}
	assert.Equal(t, []string{"2a29", "fff1", "fff4", "fff5"}, readable, "read-all MUST visit readable and notifiable handles")

	var notifiable []string
	for _, h := range c.Notifiable() {
		notifiable = append(notifiable, h.UUID)
	}
	assert.Equal(t, []string{"fff1", "fff4"}, notifiable)

	w, ok := c.FirstWritable()
	require.True(t, ok)
	assert.Equal(t, "fff2", w.UUID, "first writable MUST follow discovery order")
}

func TestBuild_DuplicateUUIDMergesCapabilities(t *testing.T) {
	c := Build([]device.CharacteristicInfo{
		{Service: "aaaa", UUID: "fff1", Capabilities: device.Readable},
		{Service: "bbbb", UUID: "fff2", Capabilities: device.Readable},
		{Service: "cccc", UUID: "FFF1", Capabilities: device.Writable},
	})

	require.Equal(t, 2, c.Len())
	first := c.Handles()[0]
	assert.Equal(t, "fff1", first.UUID, "duplicate MUST keep its first position")
	assert.Equal(t, "aaaa", first.Service)
	assert.Equal(t, device.Readable|device.Writable, first.Capabilities, "duplicate MUST union capabilities")
}

func TestCatalog_EmptyAndNil(t *testing.T) {
	var nilCatalog *Catalog
	assert.Equal(t, 0, nilCatalog.Len())
	assert.Empty(t, nilCatalog.Handles())
	_, ok := nilCatalog.FirstWritable()
	assert.False(t, ok)
	_, ok = nilCatalog.Get("fff1")
	assert.False(t, ok)

	empty := Build(nil)
	assert.Equal(t, 0, empty.Len())
	_, ok = empty.FirstWritable()
	assert.False(t, ok, "a catalog without writable handles MUST report none")
}
