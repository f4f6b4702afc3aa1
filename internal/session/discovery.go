package session

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/device"
)

// DefaultKeywords are the advertised-name fragments of known softener meters.
var DefaultKeywords = []string{"CS_Meter_Soft", "CS_Meter", "chandler", "Chandler"}

// Filter selects protocol candidates by advertised name. Matching is a
// case-sensitive substring test; an empty keyword list accepts every device.
type Filter struct {
	Keywords []string
}

// Match reports whether d is a candidate.
func (f Filter) Match(d device.DeviceDescriptor) bool {
	if len(f.Keywords) == 0 {
		return true
	}
	for _, k := range f.Keywords {
		if k != "" && strings.Contains(d.Name, k) {
			return true
		}
	}
	return false
}

// Discover scans for duration and returns the devices accepted by filter, in the
// order the transport reported them (strongest signal first for go-ble).
func Discover(ctx context.Context, t device.Transport, logger *logrus.Logger, duration time.Duration, filter Filter) ([]device.DeviceDescriptor, error) {
	found, err := t.Scan(ctx, duration)
	if err != nil {
		return nil, &ScanError{Err: err}
	}

	var out []device.DeviceDescriptor
	for _, d := range found {
		if filter.Match(d) {
			out = append(out, d)
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"seen":       len(found),
			"candidates": len(out),
		}).Info("Discovery completed")
	}
	return out, nil
}
