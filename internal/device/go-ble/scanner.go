package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/device"
)

// sighting accumulates what was heard from one address during a scan.
type sighting struct {
	name string
	rssi int
}

// scanCollector de-duplicates advertisements by address. go-ble invokes the handler
// from its own goroutines; mu serializes the read-modify-write of one sighting.
// order keeps first-heard addresses so results never depend on map iteration.
type scanCollector struct {
	mu     sync.Mutex
	seen   *hashmap.Map[string, *sighting]
	order  []string
	logger *logrus.Logger
}

func newScanCollector(logger *logrus.Logger) *scanCollector {
	return &scanCollector{
		seen:   hashmap.New[string, *sighting](),
		logger: logger,
	}
}

// handle records one advertisement. A later packet may carry the scan-response
// name the first one lacked, so an empty name never overwrites a known one.
func (c *scanCollector) handle(adv Advertisement) {
	if adv == nil || adv.Addr() == nil {
		return
	}
	addr := adv.Addr().String()
	entry := &sighting{name: adv.LocalName(), rssi: adv.RSSI()}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.seen.Get(addr)
	if !ok {
		c.seen.Set(addr, entry)
		c.order = append(c.order, addr)
		c.logger.WithFields(logrus.Fields{
			"address": addr,
			"name":    entry.name,
			"rssi":    entry.rssi,
		}).Debug("Discovered new device")
		return
	}

	if entry.name == "" {
		entry.name = existing.name
	}
	c.seen.Set(addr, entry)
}

// descriptors returns what was seen, strongest signal first, ties broken by address.
func (c *scanCollector) descriptors() []device.DeviceDescriptor {
	c.mu.Lock()
	out := make([]device.DeviceDescriptor, 0, len(c.order))
	for _, addr := range c.order {
		s, ok := c.seen.Get(addr)
		if !ok {
			continue
		}
		rssi := s.rssi
		out = append(out, device.DeviceDescriptor{Name: s.name, Address: addr, RSSI: &rssi})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if *out[i].RSSI != *out[j].RSSI {
			return *out[i].RSSI > *out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Scan implements device.Transport.
func (t *Transport) Scan(ctx context.Context, duration time.Duration) ([]device.DeviceDescriptor, error) {
	scanner, err := NewScanner()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	t.logger.WithField("duration", duration).Info("Starting BLE scan...")

	collector := newScanCollector(t.logger)
	err = scanner.Scan(scanCtx, collector.handle)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", NormalizeError(err))
	}

	found := collector.descriptors()
	t.logger.WithField("device_count", len(found)).Info("BLE scan completed")
	return found, nil
}
