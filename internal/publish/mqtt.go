package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/poller"
)

// MQTTConfig configures the broker connection and topic layout.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"` // e.g. tcp://localhost:1883; empty disables MQTT
	ClientID       string        `yaml:"client_id" default:"blesoft"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix" default:"blesoft"`
	QoS            byte          `yaml:"qos" default:"1"`
	Retained       bool          `yaml:"retained" default:"true"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// StatePayload is the JSON document published on the state topic.
type StatePayload struct {
	Address  string             `json:"address"`
	At       time.Time          `json:"at"`
	Readings int                `json:"readings"`
	Snapshot extractor.Snapshot `json:"snapshot"`
}

// MQTT publishes each successful snapshot to <prefix>/<device>/state and the
// device's reachability ("online" or "offline") to <prefix>/<device>/availability.
type MQTT struct {
	cfg    MQTTConfig
	send   func(topic string, payload []byte) error
	close  func()
	logger *logrus.Logger

	lastAvailability map[string]string
}

var _ poller.Publisher = (*MQTT)(nil)

// NewMQTT connects to cfg.Broker. Paho reconnects on its own after the first connection.
func NewMQTT(cfg MQTTConfig, logger *logrus.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out after %v", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	send := func(topic string, payload []byte) error {
		t := client.Publish(topic, cfg.QoS, cfg.Retained, payload)
		if !t.WaitTimeout(cfg.PublishTimeout) {
			return fmt.Errorf("publish to %s timed out", topic)
		}
		return t.Error()
	}
	m := newMQTT(cfg, send, logger)
	m.close = func() { client.Disconnect(250) }

	m.logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	return m, nil
}

func newMQTT(cfg MQTTConfig, send func(topic string, payload []byte) error, logger *logrus.Logger) *MQTT {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "blesoft"
	}
	return &MQTT{
		cfg:              cfg,
		send:             send,
		close:            func() {},
		logger:           logger,
		lastAvailability: make(map[string]string),
	}
}

// Topic returns the topic for a device and leaf, e.g. blesoft/aabbccddeeff/state.
func (m *MQTT) Topic(address, leaf string) string {
	dev := strings.ToLower(strings.NewReplacer(":", "", "-", "").Replace(address))
	return m.cfg.TopicPrefix + "/" + dev + "/" + leaf
}

// Publish implements poller.Publisher. Availability is only sent when it changes.
// Publish is called from the single poll loop and needs no locking.
func (m *MQTT) Publish(_ context.Context, u poller.Update) error {
	availability := "offline"
	if u.Snapshot != nil {
		availability = "online"
	}
	if m.lastAvailability[u.Address] != availability {
		if err := m.send(m.Topic(u.Address, "availability"), []byte(availability)); err != nil {
			return fmt.Errorf("publish availability: %w", err)
		}
		m.lastAvailability[u.Address] = availability
	}

	if u.Snapshot == nil {
		return nil
	}

	payload, err := json.Marshal(StatePayload{
		Address:  u.Address,
		At:       u.At,
		Readings: u.Readings,
		Snapshot: *u.Snapshot,
	})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := m.send(m.Topic(u.Address, "state"), payload); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"topic": m.Topic(u.Address, "state"),
		"bytes": len(payload),
	}).Debug("Published snapshot")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.close()
}
