package goble

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/internal/groutine"
)

// DefaultReadTimeout bounds a single characteristic read when the caller's context has no deadline.
const DefaultReadTimeout = 5 * time.Second

// Transport implements device.Transport on top of go-ble.
type Transport struct {
	logger      *logrus.Logger
	readTimeout time.Duration

	mu        sync.RWMutex
	client    Client
	address   string
	chars     map[string]*ble.Characteristic // normalized UUID -> first characteristic seen
	infos     []device.CharacteristicInfo
	subs      []*ble.Characteristic
	linkEpoch uint64
	lost      bool
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates an unconnected transport. readTimeout <= 0 selects DefaultReadTimeout.
func NewTransport(logger *logrus.Logger, readTimeout time.Duration) *Transport {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Transport{
		logger:      logger,
		readTimeout: readTimeout,
	}
}

// Connect implements device.Transport.
func (t *Transport) Connect(ctx context.Context, address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("device address is empty")
	}
	if t.client != nil && !t.lost {
		t.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}
	if t.client != nil {
		if err := t.client.CancelConnection(); err != nil {
			t.logger.WithField("error", err).Debug("Failed to cancel lost connection before reconnecting")
		}
	}
	t.resetLocked()

	t.logger.WithField("address", address).Info("Connecting to BLE device...")

	client, err := Dial(ctx, address)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	t.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	t.chars = make(map[string]*ble.Characteristic)
	for _, svc := range profile.Services {
		svcUUID := device.NormalizeUUID(svc.UUID.String())
		for _, c := range svc.Characteristics {
			charUUID := device.NormalizeUUID(c.UUID.String())
			t.infos = append(t.infos, device.CharacteristicInfo{
				Service:      svcUUID,
				UUID:         charUUID,
				Capabilities: capabilitiesOf(c.Property),
			})
			if _, dup := t.chars[charUUID]; !dup {
				t.chars[charUUID] = c
			}
		}
	}

	t.client = client
	t.address = address
	t.linkEpoch++
	t.watchLink(client, t.linkEpoch)

	t.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(t.infos),
	}).Info("BLE device connected successfully")
	return nil
}

// watchLink marks the link lost when the stack reports a disconnection. Only
// clients exposing Disconnected() (darwin, linux) are watched.
func (t *Transport) watchLink(client Client, epoch uint64) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		t.logger.Debug("Client does not expose Disconnected(), link loss is detected on the next operation")
		return
	}

	groutine.Go(context.Background(), "ble-link-monitor", func(ctx context.Context) {
		<-dc.Disconnected()

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.linkEpoch != epoch || t.client == nil {
			return
		}
		t.lost = true
		t.logger.WithField("address", t.address).Warn("BLE stack reported disconnection")
	})
}

// Enumerate implements device.Transport.
func (t *Transport) Enumerate() ([]device.CharacteristicInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.client == nil {
		return nil, device.ErrNotConnected
	}
	out := make([]device.CharacteristicInfo, len(t.infos))
	copy(out, t.infos)
	return out, nil
}

// lookup returns the live client and characteristic for uuid.
func (t *Transport) lookup(uuid string) (Client, *ble.Characteristic, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.client == nil {
		return nil, nil, device.ErrNotConnected
	}
	if t.lost {
		return nil, nil, &device.ConnectionError{State: device.NotConnected, Msg: "link lost"}
	}
	c, ok := t.chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return t.client, c, nil
}

// Read implements device.Transport. The read runs on its own goroutine so an
// unresponsive peripheral cannot hold the caller past ctx or the read timeout.
func (t *Transport) Read(ctx context.Context, uuid string) ([]byte, error) {
	client, c, err := t.lookup(uuid)
	if err != nil {
		return nil, err
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	groutine.Go(ctx, "ble-read-"+uuid, func(context.Context) {
		data, err := client.ReadCharacteristic(c)
		resultCh <- readResult{data: data, err: err}
	})

	timer := time.NewTimer(t.readTimeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", uuid, NormalizeError(result.err))
		}
		out := make([]byte, len(result.data))
		copy(out, result.data)
		return out, nil
	case <-timer.C:
		return nil, fmt.Errorf("reading characteristic %s after %v: %w", uuid, t.readTimeout, device.ErrTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("reading characteristic %s: %w", uuid, ctx.Err())
	}
}

// Write implements device.Transport. The payload goes out in a single ATT write;
// characteristics that only accept write-without-response get a command instead.
func (t *Transport) Write(ctx context.Context, uuid string, data []byte) error {
	client, c, err := t.lookup(uuid)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	noRsp := writeWithoutResponse(c.Property)
	t.logger.WithFields(logrus.Fields{
		"char_uuid": uuid,
		"bytes":     len(data),
		"no_rsp":    noRsp,
	}).Debug("Writing characteristic")

	if err := client.WriteCharacteristic(c, data, noRsp); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", uuid, NormalizeError(err))
	}
	return nil
}

// Subscribe implements device.Transport.
func (t *Transport) Subscribe(uuid string, onNotify func([]byte)) error {
	client, c, err := t.lookup(uuid)
	if err != nil {
		return err
	}
	if capabilitiesOf(c.Property)&device.Notifiable == 0 {
		return fmt.Errorf("characteristic %s does not support notifications: %w", uuid, device.ErrUnsupported)
	}

	ind := useIndication(c.Property)
	err = client.Subscribe(c, ind, func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		onNotify(buf)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", uuid, NormalizeError(err))
	}

	t.mu.Lock()
	t.subs = append(t.subs, c)
	t.mu.Unlock()
	return nil
}

// Disconnect implements device.Transport.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	client := t.client
	subs := t.subs
	address := t.address
	t.resetLocked()
	t.mu.Unlock()

	if client == nil {
		t.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	t.logger.WithField("address", address).Info("Disconnecting BLE device...")

	for _, c := range subs {
		if err := client.Unsubscribe(c, useIndication(c.Property)); err != nil {
			t.logger.WithFields(logrus.Fields{
				"char_uuid": device.NormalizeUUID(c.UUID.String()),
				"error":     err,
			}).Debug("Failed to unsubscribe during disconnect")
		}
	}

	if err := client.CancelConnection(); err != nil {
		t.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	t.logger.Info("BLE device disconnected successfully")
	return nil
}

// resetLocked drops all per-connection state. Caller holds t.mu.
func (t *Transport) resetLocked() {
	t.client = nil
	t.address = ""
	t.chars = nil
	t.infos = nil
	t.subs = nil
	t.lost = false
}
