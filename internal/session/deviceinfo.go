package session

import (
	"context"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/bledb"
)

// DeviceInfo holds the standard identification fields the device chose to expose.
// A nil field was either absent from the catalog or failed to read.
type DeviceInfo struct {
	Address      string  `json:"address"`
	Name         *string `json:"name,omitempty"`
	Manufacturer *string `json:"manufacturer,omitempty"`
	Model        *string `json:"model,omitempty"`
	Serial       *string `json:"serial,omitempty"`
	Firmware     *string `json:"firmware,omitempty"`
	BatteryLevel *uint8  `json:"battery_level,omitempty"`
}

// ReadDeviceInfo reads the standard SIG identification characteristics present in
// the catalog. Each field is read independently and omitted on failure.
func (s *Session) ReadDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.requireState("device info", Connected); err != nil {
		return nil, err
	}

	info := &DeviceInfo{Address: s.Address()}
	cat := s.Catalog()

	read := func(uuid string) []byte {
		h, ok := cat.Get(uuid)
		if !ok || !h.Readable() {
			return nil
		}
		data, err := s.transport.Read(ctx, h.UUID)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"char_uuid": h.UUID,
				"error":     err,
			}).Debug("Device info field unavailable")
			return nil
		}
		return data
	}

	text := func(uuid string) *string {
		return infoText(read(uuid))
	}

	info.Name = text(bledb.DeviceName)
	info.Manufacturer = text(bledb.Manufacturer)
	info.Model = text(bledb.ModelNumber)
	info.Serial = text(bledb.SerialNumber)
	info.Firmware = text(bledb.FirmwareRevision)
	if b := read(bledb.BatteryLevel); len(b) > 0 {
		level := b[0]
		info.BatteryLevel = &level
	}

	return info, nil
}

// infoText decodes a string characteristic. Payloads that are not UTF-8 are rendered as hex.
func infoText(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
	if !utf8.ValidString(s) {
		s = hex.EncodeToString(b)
	}
	if s == "" {
		return nil
	}
	return &s
}
