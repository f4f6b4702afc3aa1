// Package session owns one BLE connection to a softener meter and drives the
// discovery -> catalog -> read-all -> decode -> extract pipeline over it.
//
// A Session serializes its own operations: a second call blocks until the one in
// flight returns. State can be observed at any time without blocking.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/catalog"
	"github.com/srg/blesoft/internal/decoder"
	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/internal/extractor"
)

// DefaultConnectTimeout bounds Connect when Options leaves it unset.
const DefaultConnectTimeout = 30 * time.Second

// Options configures a Session. Zero fields take defaults.
type Options struct {
	ConnectTimeout time.Duration
	Decoder        *decoder.Decoder
	Extractor      *extractor.Extractor
	Now            func() time.Time
}

// RawReading is one successful characteristic read.
type RawReading struct {
	Handle     catalog.Handle
	Bytes      []byte
	ObservedAt time.Time
}

// DecodedReading is a RawReading with its candidate interpretations.
type DecodedReading struct {
	RawReading
	Candidates decoder.Candidates
}

// Report is the result of one poll: the snapshot and the readings it was built from.
type Report struct {
	Snapshot extractor.Snapshot
	Readings []DecodedReading
}

// Session manages the connection lifecycle against a device.Transport.
type Session struct {
	transport device.Transport
	logger    *logrus.Logger

	connectTimeout time.Duration
	decoder        decoder.Decoder
	extractor      extractor.Extractor
	now            func() time.Time

	opMu  sync.Mutex // held for the whole of every operation
	state atomic.Int32

	mu      sync.RWMutex // guards address and catalog for readers outside opMu
	address string
	catalog *catalog.Catalog
}

// New creates a disconnected session.
func New(transport device.Transport, logger *logrus.Logger, opts Options) *Session {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	s := &Session{
		transport:      transport,
		logger:         logger,
		connectTimeout: opts.ConnectTimeout,
		decoder:        decoder.Default(),
		extractor:      extractor.Default(),
		now:            opts.Now,
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = DefaultConnectTimeout
	}
	if opts.Decoder != nil {
		s.decoder = *opts.Decoder
	}
	if opts.Extractor != nil {
		s.extractor = *opts.Extractor
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.WithFields(logrus.Fields{
			"from": prev.String(),
			"to":   next.String(),
		}).Debug("Session state changed")
	}
}

// Address returns the address of the current connection, or "" when disconnected.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Catalog returns the catalog of the current connection, or nil when disconnected.
// The catalog is immutable; it is replaced, never modified, on reconnect.
func (s *Session) Catalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func (s *Session) requireState(op string, want State) error {
	if st := s.State(); st != want {
		return fmt.Errorf("%w: %s requires %s, session is %s", ErrInvalidState, op, want, st)
	}
	return nil
}

// Connect dials address and rebuilds the catalog. It is valid only from Disconnected
// and makes exactly one attempt bounded by the connect timeout.
func (s *Session) Connect(ctx context.Context, address string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.requireState("connect", Disconnected); err != nil {
		return err
	}

	s.setState(Connecting)
	log := s.logger.WithField("address", address)
	log.WithField("timeout", s.connectTimeout).Info("Connecting to device...")

	connCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	if err := s.transport.Connect(connCtx, address); err != nil {
		s.setState(Disconnected)
		cerr := &ConnectionError{Address: address, Err: err}
		log.WithFields(logrus.Fields{
			"error":   err,
			"timeout": cerr.Timeout(),
		}).Warn("Connection attempt failed")
		return cerr
	}

	infos, err := s.transport.Enumerate()
	if err != nil {
		if derr := s.transport.Disconnect(); derr != nil {
			log.WithField("error", derr).Debug("Disconnect after failed enumeration also failed")
		}
		s.setState(Disconnected)
		return &ConnectionError{Address: address, Err: fmt.Errorf("enumerate characteristics: %w", err)}
	}

	cat := catalog.Build(infos)
	s.mu.Lock()
	s.address = address
	s.catalog = cat
	s.mu.Unlock()
	s.setState(Connected)

	log.WithFields(logrus.Fields{
		"characteristics": cat.Len(),
		"readable":        len(cat.Readable()),
	}).Info("Device connected")
	return nil
}

// ReadAll reads every readable or notifiable handle, one at a time, in catalog order.
// Per-characteristic failures are logged and skipped, so a partial result is normal.
// If the link turns out to be gone the session drops to Disconnected and the
// readings gathered so far are returned together with ErrConnectionLost.
func (s *Session) ReadAll(ctx context.Context) ([]RawReading, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.requireState("read", Connected); err != nil {
		return nil, err
	}

	handles := s.Catalog().Readable()
	readings := make([]RawReading, 0, len(handles))

	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return readings, err
		}

		data, err := s.transport.Read(ctx, h.UUID)
		if err != nil {
			rerr := &ReadError{UUID: h.UUID, Err: err}
			if device.IsConnectionState(err, device.NotConnected) {
				s.logger.WithField("error", rerr).Warn("Link lost during read")
				s.dropLocked()
				return readings, fmt.Errorf("%w: %v", ErrConnectionLost, rerr)
			}
			s.logger.WithField("error", rerr).Debug("Skipping unreadable characteristic")
			continue
		}
		if len(data) == 0 {
			s.logger.WithField("char_uuid", h.UUID).Debug("Skipping empty characteristic value")
			continue
		}

		readings = append(readings, RawReading{Handle: h, Bytes: data, ObservedAt: s.now()})
	}

	s.logger.WithFields(logrus.Fields{
		"read":     len(readings),
		"attempts": len(handles),
	}).Debug("Read-all completed")
	return readings, nil
}

// Decode interprets readings in order.
func (s *Session) Decode(readings []RawReading) []DecodedReading {
	out := make([]DecodedReading, 0, len(readings))
	for _, r := range readings {
		out = append(out, DecodedReading{
			RawReading: r,
			Candidates: s.decoder.Decode(r.Handle.UUID, r.Bytes),
		})
	}
	return out
}

// Extract builds a snapshot from decoded readings, preserving their order.
func (s *Session) Extract(decoded []DecodedReading) extractor.Snapshot {
	in := make([]extractor.Reading, 0, len(decoded))
	for _, d := range decoded {
		in = append(in, extractor.Reading{Handle: d.Handle, Candidates: d.Candidates})
	}
	return s.extractor.Extract(in, s.now())
}

// Poll runs one read-all, decode and extract cycle.
func (s *Session) Poll(ctx context.Context) (*Report, error) {
	raw, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	decoded := s.Decode(raw)
	return &Report{
		Snapshot: s.Extract(decoded),
		Readings: decoded,
	}, nil
}

// SendCommand writes data to uuid, or to the first writable handle when uuid is empty.
// A single write is issued and no response is awaited.
func (s *Session) SendCommand(ctx context.Context, data []byte, uuid string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.requireState("command", Connected); err != nil {
		return &CommandError{UUID: uuid, Err: err}
	}
	if len(data) == 0 {
		return &CommandError{UUID: uuid, Err: errors.New("empty command")}
	}

	target, err := s.commandTarget(uuid)
	if err != nil {
		return &CommandError{UUID: uuid, Err: err}
	}

	log := s.logger.WithFields(logrus.Fields{
		"char_uuid": target.UUID,
		"bytes":     len(data),
	})
	if err := s.transport.Write(ctx, target.UUID, data); err != nil {
		if device.IsConnectionState(err, device.NotConnected) {
			log.Warn("Link lost during command")
			s.dropLocked()
		}
		return &CommandError{UUID: target.UUID, Err: err}
	}

	log.Info("Command sent")
	return nil
}

func (s *Session) commandTarget(uuid string) (catalog.Handle, error) {
	cat := s.Catalog()
	if uuid == "" {
		h, ok := cat.FirstWritable()
		if !ok {
			return catalog.Handle{}, ErrNoWritableCharacteristic
		}
		return h, nil
	}

	h, ok := cat.Get(uuid)
	if !ok {
		return catalog.Handle{}, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	if !h.Writable() {
		return catalog.Handle{}, fmt.Errorf("%w: %s (%s)", ErrNotWritable, h.UUID, h.Capabilities)
	}
	return h, nil
}

// SubscribeAll subscribes to every notifiable handle and hands each notification to
// onReading. Handles that fail to subscribe are logged and skipped; an error is
// returned only when every attempt failed. Subscriptions end with Disconnect.
func (s *Session) SubscribeAll(onReading func(RawReading)) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.requireState("subscribe", Connected); err != nil {
		return 0, err
	}

	var (
		subscribed int
		errs       []error
	)
	for _, h := range s.Catalog().Notifiable() {
		handle := h
		err := s.transport.Subscribe(handle.UUID, func(data []byte) {
			onReading(RawReading{Handle: handle, Bytes: data, ObservedAt: s.now()})
		})
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"char_uuid": handle.UUID,
				"error":     err,
			}).Warn("Failed to subscribe")
			errs = append(errs, err)
			continue
		}
		subscribed++
	}

	if subscribed == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	s.logger.WithField("subscribed", subscribed).Info("Notifications enabled")
	return subscribed, nil
}

// Disconnect tears the connection down. It is valid in any state, idempotent, and
// always leaves the session Disconnected; a transport failure is returned but the
// local state is cleared regardless.
func (s *Session) Disconnect() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() == Disconnected && s.Catalog() == nil {
		return nil
	}
	return s.dropLocked()
}

// dropLocked disconnects the transport and clears connection state. Caller holds opMu.
func (s *Session) dropLocked() error {
	s.setState(Disconnecting)
	address := s.Address()

	err := s.transport.Disconnect()

	s.mu.Lock()
	s.address = ""
	s.catalog = nil
	s.mu.Unlock()
	s.setState(Disconnected)

	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Transport disconnect failed, session state cleared anyway")
		return fmt.Errorf("disconnect %s: %w", address, err)
	}
	s.logger.WithField("address", address).Info("Device disconnected")
	return nil
}
