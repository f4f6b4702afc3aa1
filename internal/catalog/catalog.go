// Package catalog classifies the characteristics discovered on a connection by
// capability and keeps them in discovery order. Order matters downstream: metric
// extraction is first-match-wins over catalog order.
package catalog

import (
	"github.com/srg/blesoft/internal/bledb"
	"github.com/srg/blesoft/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handle is the logical reference to one characteristic for the lifetime of a connection.
type Handle struct {
	UUID         string            `json:"uuid"`
	Service      string            `json:"service,omitempty"`
	Name         string            `json:"name,omitempty"`
	Capabilities device.Capability `json:"capabilities"`
}

// Readable reports whether the handle is polled by a read-all (read or notify capable).
func (h Handle) Readable() bool {
	return h.Capabilities.Any(device.Readable | device.Notifiable)
}

// Writable reports whether commands may be sent to the handle.
func (h Handle) Writable() bool {
	return h.Capabilities.Has(device.Writable)
}

// Notifiable reports whether the handle can be subscribed to.
func (h Handle) Notifiable() bool {
	return h.Capabilities.Has(device.Notifiable)
}

// Catalog is an immutable, ordered set of handles keyed by normalized UUID.
type Catalog struct {
	entries *orderedmap.OrderedMap[string, Handle]
}

// Build creates a catalog from enumerated characteristics. Nothing is dropped:
// characteristics without capabilities are kept. A UUID reported by more than one
// service keeps its first position and gains the union of capabilities, since the
// transport addresses characteristics by UUID alone.
func Build(infos []device.CharacteristicInfo) *Catalog {
	entries := orderedmap.New[string, Handle](len(infos))
	for _, info := range infos {
		uuid := device.NormalizeUUID(info.UUID)
		if prev, ok := entries.Get(uuid); ok {
			prev.Capabilities |= info.Capabilities
			entries.Set(uuid, prev)
			continue
		}
		entries.Set(uuid, Handle{
			UUID:         uuid,
			Service:      device.NormalizeUUID(info.Service),
			Name:         bledb.LookupCharacteristic(uuid),
			Capabilities: info.Capabilities,
		})
	}
	return &Catalog{entries: entries}
}

// Len returns the number of handles. A nil catalog is empty.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Get looks a handle up by UUID in any accepted form.
func (c *Catalog) Get(uuid string) (Handle, bool) {
	if c == nil {
		return Handle{}, false
	}
	return c.entries.Get(device.NormalizeUUID(uuid))
}

// Handles returns every handle in discovery order.
func (c *Catalog) Handles() []Handle {
	return c.filter(func(Handle) bool { return true })
}

// Readable returns the handles a read-all visits, in discovery order.
func (c *Catalog) Readable() []Handle {
	return c.filter(Handle.Readable)
}

// Notifiable returns the handles that can be subscribed to, in discovery order.
func (c *Catalog) Notifiable() []Handle {
	return c.filter(Handle.Notifiable)
}

// FirstWritable returns the first writable handle in discovery order.
func (c *Catalog) FirstWritable() (Handle, bool) {
	if c == nil {
		return Handle{}, false
	}
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Writable() {
			return pair.Value, true
		}
	}
	return Handle{}, false
}

func (c *Catalog) filter(keep func(Handle) bool) []Handle {
	if c == nil {
		return nil
	}
	out := make([]Handle, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if keep(pair.Value) {
			out = append(out, pair.Value)
		}
	}
	return out
}
