package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesoft/internal/groutine"
	"github.com/srg/blesoft/internal/poller"
	"github.com/srg/blesoft/internal/publish"
	"github.com/srg/blesoft/internal/session"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [device-address]",
	Short: "Poll the softener continuously",
	Long: `Connects to the softener and polls it on a fixed interval, printing one
line per poll. Lost connections are re-established on the next tick; after
repeated failures reconnects are suspended for a while. A device given by
address that is out of range at startup is retried the same way.

Readings can be exported to Prometheus (--metrics-addr) and to an MQTT broker
(--mqtt-broker). Press Ctrl+C to stop.

Examples:
  blesoft monitor AA:BB:CC:DD:EE:FF --interval 1m
  blesoft monitor --metrics-addr :9105
  blesoft monitor --mqtt-broker tcp://localhost:1883 --notify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorInterval    time.Duration
	monitorDuration    time.Duration
	monitorMetricsAddr string
	monitorMQTTBroker  string
	monitorNotify      bool
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 0, "Poll interval (default from config, 30s)")
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9105")
	monitorCmd.Flags().StringVar(&monitorMQTTBroker, "mqtt-broker", "", "Publish readings to this MQTT broker, e.g. tcp://localhost:1883")
	monitorCmd.Flags().BoolVar(&monitorNotify, "notify", false, "Also print notifications pushed by the device on the startup connection")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if monitorInterval > 0 {
		cfg.Poller.Interval = monitorInterval
	}
	if monitorMetricsAddr != "" {
		cfg.Metrics.Addr = monitorMetricsAddr
	}
	if monitorMQTTBroker != "" {
		cfg.MQTT.Broker = monitorMQTTBroker
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	if monitorDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, monitorDuration)
		defer stop()
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	client := newClient(cfg, logger)
	defer func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Debug("Disconnect failed")
		}
	}()

	// A known address survives a failed first connection: the poller keeps
	// reconnecting through its breaker. Without one there is nothing to retry.
	address := resolveAddress(args, cfg)
	conn, err := client.Initialize(ctx, address)
	switch {
	case err == nil:
		address = conn.DeviceInfo.Address
	case address == "" || isInterrupt(err):
		return err
	default:
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Initial connection failed, retrying on every tick")
		fmt.Fprintf(out, "%s %s unreachable (%s), retrying every %s\n", warnColor("WAIT"), address, FormatUserError(err), cfg.Poller.Interval)
	}

	metrics := publish.NewMetrics()
	pubs := []poller.Publisher{consolePublisher(out), metrics}

	if cfg.Metrics.Addr != "" {
		registerRuntimeCollectors(metrics)
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		bound, done, err := serveMetrics(metricsCtx, cfg.Metrics.Addr, cfg.Metrics.Path, metrics.Handler(), logger)
		if err != nil {
			stopMetrics()
			return err
		}
		defer func() {
			stopMetrics()
			<-done
		}()
		fmt.Fprintf(out, "Metrics on http://%s%s\n", bound, cfg.Metrics.Path)
	}

	if cfg.MQTT.Broker != "" {
		mq, err := publish.NewMQTT(cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer mq.Close()
		pubs = append(pubs, mq)
	}

	if monitorNotify && conn == nil {
		logger.Warn("Notifications need a connection at startup, skipping")
	}
	if monitorNotify && conn != nil {
		sess := client.Session()
		n, err := sess.SubscribeAll(func(r session.RawReading) {
			decoded := sess.Decode([]session.RawReading{r})[0]
			fmt.Fprintf(out, "%s %s %s %s\n", r.ObservedAt.Format(time.RFC3339), warnColor("NOTIFY"), r.Handle.UUID, hex.EncodeToString(r.Bytes)+" "+formatCandidates(decoded.Candidates))
		})
		if err != nil {
			logger.WithError(err).Warn("Notifications unavailable")
		} else {
			logger.WithField("subscribed", n).Debug("Listening for notifications")
		}
	}

	pcfg := cfg.Poller
	pcfg.Address = address
	p := poller.New(client.Session(), pcfg, logger, poller.WithPublishers(pubs...))

	fmt.Fprintf(out, "Monitoring %s every %s (Ctrl+C to stop)\n", address, pcfg.Interval)
	err = <-p.Start(ctx)

	st := p.Status()
	fmt.Fprintf(out, "Stopped: %s, breaker %s, last success %s\n",
		stateLabel(st.State), st.Breaker, formatLastSuccess(st.LastSuccess))

	if isInterrupt(err) {
		return nil
	}
	return err
}

// lockedWriter serializes writes from the poller and notification callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// consolePublisher prints one line per poll result.
func consolePublisher(w io.Writer) poller.Publisher {
	return poller.PublisherFunc(func(_ context.Context, u poller.Update) error {
		_, err := fmt.Fprintln(w, formatUpdate(u))
		return err
	})
}

func formatUpdate(u poller.Update) string {
	ts := u.At.Format(time.RFC3339)
	if u.Err != nil || u.Snapshot == nil {
		return fmt.Sprintf("%s %s %v (consecutive failures: %d)", ts, errColor("FAIL"), u.Err, u.ConsecutiveFailures)
	}

	var parts []string
	for _, g := range u.Snapshot.Gauges() {
		if g.Value != nil {
			parts = append(parts, g.Name+"="+formatFloat(*g.Value))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no metrics recognised")
	}
	return fmt.Sprintf("%s %s %s (%d readings)", ts, okColor("OK"), strings.Join(parts, " "), u.Readings)
}

func formatLastSuccess(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// registerRuntimeCollectors adds the Go runtime and process collectors next to the softener gauges.
func registerRuntimeCollectors(m *publish.Metrics) {
	m.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// serveMetrics exposes h on addr until ctx ends. It returns the bound address and
// a channel closed once the server has shut down.
func serveMetrics(ctx context.Context, addr, path string, h http.Handler, logger *logrus.Logger) (net.Addr, <-chan struct{}, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	groutine.Go(ctx, "metrics-shutdown", func(ctx context.Context) {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	})

	done := groutine.GoDone(ctx, "metrics-server", func(context.Context) {
		logger.WithField("addr", ln.Addr().String()).Info("Serving metrics")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server stopped")
		}
	})
	return ln.Addr(), done, nil
}
