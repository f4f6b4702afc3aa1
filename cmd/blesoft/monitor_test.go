//go:build test

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/poller"
	"github.com/srg/blesoft/internal/publish"
	"github.com/srg/blesoft/internal/testutils"
	"github.com/srg/blesoft/pkg/softener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MonitorTestSuite struct {
	CommandTestSuite
}

func (s *MonitorTestSuite) TestMonitorPollsUntilDurationEnds() {
	// GOAL: Verify monitor polls immediately, prints the result and disconnects on shutdown
	//
	// TEST SCENARIO: monitor with a long interval and short duration → exactly one poll line → stopped disconnected

	output, err := s.ExecuteCommand("monitor", TestDeviceAddress1, "--interval", "1h", "--duration", "300ms")
	s.Require().NoError(err, "running out of time MUST be a clean exit")

	s.Contains(output, "Monitoring 00:00:00:00:00:01 every 1h0m0s")
	s.Contains(output, "OK salt_level=50 battery_level=50 flow_rate=2.5 (5 readings)")
	s.Contains(output, "Stopped: disconnected, breaker closed")
	s.Client.AssertCalled(s.T(), "CancelConnection")
}

func (s *MonitorTestSuite) TestMonitorServesMetrics() {
	output, err := s.ExecuteCommand("monitor", TestDeviceAddress1, "--interval", "1h", "--duration", "200ms", "--metrics-addr", "127.0.0.1:0")
	s.Require().NoError(err)
	s.Contains(output, "Metrics on http://127.0.0.1:")
}

func (s *MonitorTestSuite) TestMonitorPrintsNotifications() {
	// GOAL: Verify --notify prints decoded notifications pushed by the device
	//
	// TEST SCENARIO: monitor --notify → device pushes 0x40 on fff1 → NOTIFY line with hex and candidates

	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if s.Peripheral.Notify("fff1", []byte{0x40}) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	output, err := s.ExecuteCommand("monitor", TestDeviceAddress1, "--interval", "1h", "--duration", "400ms", "--notify")
	s.Require().NoError(err)
	s.Contains(output, "NOTIFY fff1 40 ")
	s.Contains(output, "uint8=64")
}

func (s *MonitorTestSuite) TestMonitorRecoversFromStartupConnectFailure() {
	// GOAL: Verify a device out of range at startup is retried by the poller instead of ending the command
	//
	// TEST SCENARIO: first two dials refused → startup WAIT line → first tick FAIL → next tick OK

	s.Peripheral.WithDialFailures(2, errors.New("connection refused"))

	output, err := s.ExecuteCommand("monitor", TestDeviceAddress1, "--interval", "100ms", "--duration", "600ms")
	s.Require().NoError(err, "a known address MUST keep being polled after a failed startup connection")

	s.Contains(output, "WAIT 00:00:00:00:00:01 unreachable")
	s.Contains(output, "FAIL")
	s.Contains(output, "(consecutive failures: 1)")
	s.Contains(output, "OK salt_level=50 battery_level=50 flow_rate=2.5 (5 readings)", "a later tick MUST reconnect")
	s.Less(strings.Index(output, "FAIL"), strings.Index(output, "OK salt_level"), "the failed tick MUST come before the recovery")
}

func (s *MonitorTestSuite) TestMonitorKeepsRetryingUnreachableDevice() {
	s.Peripheral.WithDialError(errors.New("connection refused"))

	output, err := s.ExecuteCommand("monitor", TestDeviceAddress1, "--interval", "1h", "--duration", "200ms")
	s.Require().NoError(err, "an unreachable known address MUST NOT fail the command")
	s.Contains(output, "(consecutive failures: 1)")
	s.Contains(output, "last success never")
}

func (s *MonitorTestSuite) TestMonitorScanWithoutCandidatesFails() {
	// GOAL: Verify a failed discovery stays fatal because there is no address to retry
	//
	// TEST SCENARIO: no address, no config address, nothing advertised → ErrNoDevice

	_, err := s.ExecuteCommand("monitor", "--duration", "2s", "--config", s.WriteConfig(`
log_level: panic
device:
  scan_timeout: 50ms
`))
	s.Require().Error(err)
	s.ErrorIs(err, softener.ErrNoDevice)
}

func (s *MonitorTestSuite) TestMonitorRejectsInvalidConfig() {
	_, err := s.ExecuteCommand("monitor", TestDeviceAddress1, "--mqtt-broker", "tcp://localhost:1883", "--config", s.WriteConfig(`
log_level: panic
mqtt:
  qos: 3
`))
	s.Require().Error(err)
	s.Contains(err.Error(), "qos")
}

func TestMonitorTestSuite(t *testing.T) {
	suite.Run(t, new(MonitorTestSuite))
}

func TestFormatUpdate(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	salt := uint8(40)
	flow := 1.25

	tests := []struct {
		name     string
		update   poller.Update
		expected string
	}{
		{
			name: "success",
			update: poller.Update{
				At:       at,
				Readings: 3,
				Snapshot: &extractor.Snapshot{SaltLevel: &salt, FlowRate: &flow},
			},
			expected: "2025-01-02T03:04:05Z OK salt_level=40 flow_rate=1.25 (3 readings)",
		},
		{
			name:     "nothing recognised",
			update:   poller.Update{At: at, Snapshot: &extractor.Snapshot{}},
			expected: "2025-01-02T03:04:05Z OK no metrics recognised (0 readings)",
		},
		{
			name:     "failure",
			update:   poller.Update{At: at, Err: errors.New("connection lost"), ConsecutiveFailures: 2},
			expected: "2025-01-02T03:04:05Z FAIL connection lost (consecutive failures: 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatUpdate(tt.update))
		})
	}
}

func TestServeMetrics(t *testing.T) {
	// GOAL: Verify the metrics endpoint serves published readings and stops with its context
	//
	// TEST SCENARIO: publish one snapshot → GET /metrics → gauge present → cancel → server done

	helper := testutils.NewTestHelper(t)
	metrics := publish.NewMetrics()
	registerRuntimeCollectors(metrics)
	salt := uint8(42)
	require.NoError(t, metrics.Publish(context.Background(), poller.Update{
		Address:  TestDeviceAddress1,
		At:       time.Now(),
		Readings: 1,
		Snapshot: &extractor.Snapshot{SaltLevel: &salt},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	addr, done, err := serveMetrics(ctx, "127.0.0.1:0", "/metrics", metrics.Handler(), helper.Logger)
	require.NoError(t, err, "server MUST start")

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `blesoft_metric_value{device="00:00:00:00:00:01",metric="salt_level",unit="percent"} 42`)
	assert.Contains(t, string(body), "go_goroutines", "runtime collectors MUST be served next to the softener gauges")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server MUST stop after cancellation")
	}
}

func TestServeMetricsBadAddress(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	_, _, err := serveMetrics(context.Background(), "256.0.0.1:bad", "/metrics", http.NotFoundHandler(), helper.Logger)
	assert.Error(t, err)
}
