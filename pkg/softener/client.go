// Package softener is the consumer-facing API: initialize a connection (scanning
// when no address is known), fetch status snapshots with raw diagnostics, and
// send raw commands.
package softener

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/decoder"
	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/session"
)

// DefaultScanTimeout bounds discovery when Initialize is called without an address.
const DefaultScanTimeout = 10 * time.Second

// ErrNoDevice is returned by Initialize when discovery found no candidate.
var ErrNoDevice = errors.New("no softener found")

// Options configures a Client.
type Options struct {
	// Keywords select discovery candidates. nil uses session.DefaultKeywords;
	// an empty non-nil slice accepts every device.
	Keywords    []string
	ScanTimeout time.Duration
	Session     session.Options
}

// InitResult describes the connection Initialize established.
type InitResult struct {
	Connected       bool                     `json:"connected"`
	DeviceInfo      session.DeviceInfo       `json:"device_info"`
	Discovered      *device.DeviceDescriptor `json:"discovered,omitempty"`
	Characteristics int                      `json:"characteristics"`
}

// Reading is the diagnostic view of one characteristic read.
type Reading struct {
	UUID         string             `json:"uuid"`
	Service      string             `json:"service"`
	Name         string             `json:"name,omitempty"`
	Capabilities device.Capability  `json:"capabilities"`
	Hex          string             `json:"hex"`
	Bytes        []int              `json:"bytes"`
	Length       int                `json:"length"`
	Timestamp    time.Time          `json:"timestamp"`
	Candidates   decoder.Candidates `json:"candidates"`
}

// Status is the result of GetStatus.
type Status struct {
	Address  string             `json:"address"`
	Snapshot extractor.Snapshot `json:"snapshot"`
	Readings []Reading          `json:"raw_readings"`
}

// Client owns one session.
type Client struct {
	transport   device.Transport
	logger      *logrus.Logger
	session     *session.Session
	filter      session.Filter
	scanTimeout time.Duration
}

// New creates a client over transport.
func New(transport device.Transport, logger *logrus.Logger, opts Options) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	keywords := opts.Keywords
	if keywords == nil {
		keywords = session.DefaultKeywords
	}
	scanTimeout := opts.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	return &Client{
		transport:   transport,
		logger:      logger,
		session:     session.New(transport, logger, opts.Session),
		filter:      session.Filter{Keywords: keywords},
		scanTimeout: scanTimeout,
	}
}

// Session exposes the underlying session, e.g. to hand it to a poller.
func (c *Client) Session() *session.Session {
	return c.session
}

// Initialize connects to address, or to the strongest discovered candidate when
// address is empty, and reads the standard device information.
func (c *Client) Initialize(ctx context.Context, address string) (*InitResult, error) {
	result := &InitResult{}

	if address == "" {
		found, err := session.Discover(ctx, c.transport, c.logger, c.scanTimeout, c.filter)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%w (keywords %v, scanned %v)", ErrNoDevice, c.filter.Keywords, c.scanTimeout)
		}
		best := found[0]
		result.Discovered = &best
		address = best.Address
		c.logger.WithFields(logrus.Fields{
			"address":    best.Address,
			"name":       best.DisplayName(),
			"candidates": len(found),
		}).Info("Selected softener from scan")
	}

	if err := c.session.Connect(ctx, address); err != nil {
		return nil, err
	}
	result.Connected = true
	result.Characteristics = c.session.Catalog().Len()

	info, err := c.session.ReadDeviceInfo(ctx)
	if err != nil {
		c.logger.WithField("error", err).Warn("Device info unavailable")
		info = &session.DeviceInfo{Address: address}
	}
	if info.Name == nil && result.Discovered != nil && result.Discovered.Name != "" {
		name := result.Discovered.Name
		info.Name = &name
	}
	result.DeviceInfo = *info
	return result, nil
}

// GetStatus polls every readable characteristic and returns the snapshot together
// with the raw readings it was derived from.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	report, err := c.session.Poll(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Address:  c.session.Address(),
		Snapshot: report.Snapshot,
		Readings: make([]Reading, 0, len(report.Readings)),
	}
	for _, r := range report.Readings {
		st.Readings = append(st.Readings, readingView(r))
	}
	return st, nil
}

func readingView(r session.DecodedReading) Reading {
	ints := make([]int, len(r.Bytes))
	for i, b := range r.Bytes {
		ints[i] = int(b)
	}
	return Reading{
		UUID:         r.Handle.UUID,
		Service:      r.Handle.Service,
		Name:         r.Handle.Name,
		Capabilities: r.Handle.Capabilities,
		Hex:          hex.EncodeToString(r.Bytes),
		Bytes:        ints,
		Length:       len(r.Bytes),
		Timestamp:    r.ObservedAt,
		Candidates:   r.Candidates,
	}
}

// SendCommand parses hexData and writes it to uuid, or to the first writable
// characteristic when uuid is empty. Malformed input never reaches the device.
func (c *Client) SendCommand(ctx context.Context, hexData, uuid string) error {
	data, err := ParseHex(hexData)
	if err != nil {
		return &session.CommandError{UUID: uuid, Err: err}
	}
	if uuid != "" {
		if _, err := device.ValidateUUID(uuid); err != nil {
			return &session.CommandError{UUID: uuid, Err: err}
		}
	}
	return c.session.SendCommand(ctx, data, uuid)
}

// Close disconnects the session.
func (c *Client) Close() error {
	return c.session.Disconnect()
}
