//go:build test

package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/blesoft/internal/device"
	goble "github.com/srg/blesoft/internal/device/go-ble"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type characteristicSpec struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties"`
	Value      []int  `json:"value"`
}

type serviceSpec struct {
	UUID            string               `json:"uuid"`
	Characteristics []characteristicSpec `json:"characteristics"`
}

type peripheralSpec struct {
	Services []serviceSpec `json:"services"`
}

// PeripheralBuilder describes a GATT profile and turns it into a MockClient
// with matching expectations. Notification handlers and writes are recorded so
// tests can drive and inspect them.
//
//	client := testutils.NewPeripheralBuilder(t).
//	    WithService("fff0").
//	    WithCharacteristic("fff1", "read,notify", []byte{50}).
//	    WithCharacteristic("fff2", "write", nil).
//	    Build()
type PeripheralBuilder struct {
	t require.TestingT

	spec        peripheralSpec
	readErrs    map[string]error
	readDelays  map[string]time.Duration
	writeErrs   map[string]error
	discoverErr error
	dialErr     error
	dialFails   int

	mu       sync.Mutex
	client   *MockClient
	handlers map[string]ble.NotificationHandler
	writes   map[string][][]byte
}

func NewPeripheralBuilder(t require.TestingT) *PeripheralBuilder {
	return &PeripheralBuilder{
		t:          t,
		readErrs:   make(map[string]error),
		readDelays: make(map[string]time.Duration),
		writeErrs:  make(map[string]error),
		handlers:   make(map[string]ble.NotificationHandler),
		writes:     make(map[string][][]byte),
	}
}

// FromJSON appends the services described by the formatted JSON document.
func (b *PeripheralBuilder) FromJSON(jsonFmt string, args ...any) *PeripheralBuilder {
	var spec peripheralSpec
	err := json.Unmarshal([]byte(fmt.Sprintf(jsonFmt, args...)), &spec)
	require.NoError(b.t, err, "peripheral JSON MUST be valid")
	b.spec.Services = append(b.spec.Services, spec.Services...)
	return b
}

func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.spec.Services = append(b.spec.Services, serviceSpec{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the most recently added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	require.NotEmpty(b.t, b.spec.Services, "WithService MUST be called before WithCharacteristic")
	ints := make([]int, len(value))
	for i, v := range value {
		ints[i] = int(v)
	}
	svc := &b.spec.Services[len(b.spec.Services)-1]
	svc.Characteristics = append(svc.Characteristics, characteristicSpec{UUID: uuid, Properties: properties, Value: ints})
	return b
}

func (b *PeripheralBuilder) WithReadError(uuid string, err error) *PeripheralBuilder {
	b.readErrs[device.NormalizeUUID(uuid)] = err
	return b
}

func (b *PeripheralBuilder) WithReadDelay(uuid string, delay time.Duration) *PeripheralBuilder {
	b.readDelays[device.NormalizeUUID(uuid)] = delay
	return b
}

func (b *PeripheralBuilder) WithWriteError(uuid string, err error) *PeripheralBuilder {
	b.writeErrs[device.NormalizeUUID(uuid)] = err
	return b
}

func (b *PeripheralBuilder) WithDiscoverError(err error) *PeripheralBuilder {
	b.discoverErr = err
	return b
}

func (b *PeripheralBuilder) WithDialError(err error) *PeripheralBuilder {
	b.dialErr = err
	return b
}

// WithDialFailures makes the next count dials fail with err; later dials succeed.
func (b *PeripheralBuilder) WithDialFailures(count int, err error) *PeripheralBuilder {
	b.dialErr = err
	b.dialFails = count
	return b
}

// Build creates the mock client. Calling Build again returns the same client.
func (b *PeripheralBuilder) Build() *MockClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client
	}

	client := NewMockClient()
	profile := &ble.Profile{}
	for _, svcSpec := range b.spec.Services {
		svc := &ble.Service{UUID: ble.MustParse(svcSpec.UUID)}
		for _, cs := range svcSpec.Characteristics {
			svc.Characteristics = append(svc.Characteristics, b.expectCharacteristic(client, cs))
		}
		profile.Services = append(profile.Services, svc)
	}

	if b.discoverErr != nil {
		client.On("DiscoverProfile", true).Return(nil, b.discoverErr)
	} else {
		client.On("DiscoverProfile", true).Return(profile, nil)
	}
	client.On("CancelConnection").Return(nil)

	b.client = client
	return client
}

func (b *PeripheralBuilder) expectCharacteristic(client *MockClient, cs characteristicSpec) *ble.Characteristic {
	value := make([]byte, len(cs.Value))
	for i, v := range cs.Value {
		value[i] = byte(v)
	}
	char := &ble.Characteristic{
		UUID:     ble.MustParse(cs.UUID),
		Property: parseProperties(cs.Properties),
		Value:    value,
	}
	key := device.NormalizeUUID(cs.UUID)
	same := mock.MatchedBy(func(c *ble.Characteristic) bool { return c == char })

	read := client.On("ReadCharacteristic", same).Return(value, b.readErrs[key])
	if delay := b.readDelays[key]; delay > 0 {
		read.After(delay)
	}

	client.On("WriteCharacteristic", same, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			payload := append([]byte(nil), args.Get(1).([]byte)...)
			b.mu.Lock()
			b.writes[key] = append(b.writes[key], payload)
			b.mu.Unlock()
		}).
		Return(b.writeErrs[key])

	client.On("Subscribe", same, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			b.mu.Lock()
			b.handlers[key] = args.Get(2).(ble.NotificationHandler)
			b.mu.Unlock()
		}).
		Return(nil)
	client.On("Unsubscribe", same, mock.Anything).Return(nil)

	return char
}

// Dial is a drop-in for goble.Dial that hands back the built client.
func (b *PeripheralBuilder) Dial(ctx context.Context, _ string) (goble.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	err := b.dialErr
	if err != nil && b.dialFails > 0 {
		b.dialFails--
		if b.dialFails == 0 {
			b.dialErr = nil
		}
	}
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// Notify delivers data to the handler subscribed on uuid. It reports whether a handler was registered.
func (b *PeripheralBuilder) Notify(uuid string, data []byte) bool {
	b.mu.Lock()
	h := b.handlers[device.NormalizeUUID(uuid)]
	b.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Writes returns every payload written to uuid, in order.
func (b *PeripheralBuilder) Writes(uuid string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.writes[device.NormalizeUUID(uuid)]...)
}

func parseProperties(props string) ble.Property {
	var p ble.Property
	for _, token := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(token)) {
		case "read":
			p |= ble.CharRead
		case "write":
			p |= ble.CharWrite
		case "write-nr", "write-without-response":
			p |= ble.CharWriteNR
		case "notify":
			p |= ble.CharNotify
		case "indicate":
			p |= ble.CharIndicate
		}
	}
	return p
}
