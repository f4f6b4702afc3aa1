//go:build test

package testutils

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/blesoft/internal/device/go-ble"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite is a testify suite that routes goble.Dial and
// goble.NewScanner to an in-memory softener peripheral.
//
// Custom profiles are configured before calling the parent SetupTest:
//
//	func (s *TransportSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("fff0").
//	        WithCharacteristic("fff1", "read,notify", []byte{50})
//
//	    s.MockBLEPeripheralSuite.SetupTest()
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Peripheral     *PeripheralBuilder
	Advertisements []ScanAdvertisement
	Client         *MockClient

	originalDial       func(ctx context.Context, address string) (goble.Client, error)
	originalNewScanner func() (goble.Scanner, error)
}

func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.Peripheral == nil {
		s.Peripheral = DefaultSoftenerPeripheral(s.T())
	}
	s.Client = s.Peripheral.Build()

	s.originalDial = goble.Dial
	s.originalNewScanner = goble.NewScanner
	goble.Dial = s.Peripheral.Dial

	advs := s.Advertisements
	goble.NewScanner = func() (goble.Scanner, error) {
		return &FakeScanner{Advertisements: advs}, nil
	}
}

func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.originalDial != nil {
		goble.Dial = s.originalDial
	}
	if s.originalNewScanner != nil {
		goble.NewScanner = s.originalNewScanner
	}
	s.Peripheral = nil
	s.Advertisements = nil
	s.Client = nil
}

// WithPeripheral returns the builder for the peripheral the next test dials.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralBuilder {
	if s.Peripheral == nil {
		s.Peripheral = NewPeripheralBuilder(s.T())
	}
	return s.Peripheral
}

// WithAdvertisements sets what the fake scanner reports.
func (s *MockBLEPeripheralSuite) WithAdvertisements(advs ...ScanAdvertisement) {
	s.Advertisements = append(s.Advertisements, advs...)
}

// DefaultSoftenerPeripheral is a softener with a vendor service and the
// standard Device Information and Battery services.
func DefaultSoftenerPeripheral(t require.TestingT) *PeripheralBuilder {
	return NewPeripheralBuilder(t).FromJSON(`
	{
		"services": [
			{
				"uuid": "fff0",
				"characteristics": [
					{ "uuid": "fff1", "properties": "read,notify", "value": [50] },
					{ "uuid": "fff2", "properties": "write", "value": [] },
					{ "uuid": "fff3", "properties": "read", "value": [0, 0, 32, 64] }
				]
			},
			{
				"uuid": "180a",
				"characteristics": [
					{ "uuid": "2a29", "properties": "read", "value": [65, 99, 109, 101, 0] },
					{ "uuid": "2a24", "properties": "read", "value": [83, 45, 49, 48, 48] }
				]
			},
			{
				"uuid": "180f",
				"characteristics": [
					{ "uuid": "2a19", "properties": "read,notify", "value": [85] }
				]
			}
		]
	}`)
}

// ScanAdvertisement is what FakeScanner reports for one packet.
type ScanAdvertisement struct {
	Name    string
	Address string
	Signal  int
}

// FakeScanner replays advertisements to the handler and then waits for the scan window to end.
type FakeScanner struct {
	Advertisements []ScanAdvertisement
	Err            error
}

func (f *FakeScanner) Scan(ctx context.Context, h func(goble.Advertisement)) error {
	if f.Err != nil {
		return f.Err
	}
	for _, a := range f.Advertisements {
		h(a)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a ScanAdvertisement) LocalName() string { return a.Name }
func (a ScanAdvertisement) RSSI() int         { return a.Signal }
func (a ScanAdvertisement) Addr() ble.Addr    { return ble.NewAddr(a.Address) }
