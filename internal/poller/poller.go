// Package poller keeps a softener session connected and refreshes its snapshot
// on a fixed interval. Failures are isolated to the tick they happen in: the
// loop only ends when its context is cancelled.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/groutine"
	"github.com/srg/blesoft/internal/ringchan"
	"github.com/srg/blesoft/internal/session"
)

// Session is what the poller needs from session.Session.
type Session interface {
	State() session.State
	Connect(ctx context.Context, address string) error
	Poll(ctx context.Context) (*session.Report, error)
	Disconnect() error
}

// Update is handed to every Publisher once per tick. Snapshot is nil when the tick failed.
type Update struct {
	Address             string
	At                  time.Time
	Snapshot            *extractor.Snapshot
	Readings            int
	Err                 error
	ConsecutiveFailures int
}

// Publisher receives tick results. A publisher error is logged and never fails the tick.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, u Update) error

func (f PublisherFunc) Publish(ctx context.Context, u Update) error { return f(ctx, u) }

// Config controls the loop. Zero values take the defaults below.
type Config struct {
	Address         string        `yaml:"address"`
	Interval        time.Duration `yaml:"interval" default:"30s"`
	StaleAfter      time.Duration `yaml:"stale_after"` // 0 means three intervals
	BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" default:"2m"`
}

const (
	DefaultInterval        = 30 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 3 * c.Interval
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = DefaultBreakerTimeout
	}
	return c
}

// Poller runs the refresh loop for one session.
type Poller struct {
	cfg        Config
	session    Session
	clock      Clock
	logger     *logrus.Logger
	publishers []Publisher
	breaker    *gobreaker.CircuitBreaker[struct{}]
	updates    *ringchan.Channel[extractor.Snapshot]

	mu     sync.RWMutex
	status Status
}

// Option customizes a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithPublishers adds publishers, called in order on every tick.
func WithPublishers(pubs ...Publisher) Option {
	return func(p *Poller) { p.publishers = append(p.publishers, pubs...) }
}

// New creates a poller for s. The session must have been created for cfg.Address.
func New(s Session, cfg Config, logger *logrus.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	cfg = cfg.withDefaults()

	p := &Poller{
		cfg:     cfg,
		session: s,
		clock:   RealClock(),
		logger:  logger,
		updates: ringchan.New[extractor.Snapshot](1),
		status:  Status{Address: cfg.Address},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "reconnect:" + cfg.Address,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Reconnect breaker state changed")
		},
	})
	return p
}

// Updates streams the latest snapshot. Slow readers only ever see the newest one.
// The channel is closed when Run returns.
func (p *Poller) Updates() <-chan extractor.Snapshot {
	return p.updates.C()
}

// Start runs the loop on its own goroutine. The returned channel yields Run's
// error once and is then closed.
func (p *Poller) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	groutine.Go(ctx, "softener-poller", func(ctx context.Context) {
		errCh <- p.Run(ctx)
		close(errCh)
	})
	return errCh
}

// Run ticks immediately and then every interval until ctx is cancelled. On
// cancellation it disconnects the session (best effort) and returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.Ticker(p.cfg.Interval)
	defer ticker.Stop()
	defer p.updates.Close()

	fields := logrus.Fields{
		"address":  p.cfg.Address,
		"interval": p.cfg.Interval,
	}
	if name := groutine.GetName(ctx); name != "" {
		fields["goroutine"] = name
	}
	p.logger.WithFields(fields).Info("Poller started")

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return ctx.Err()
		case <-ticker.Chan():
			p.Tick(ctx)
		}
	}
}

func (p *Poller) shutdown() {
	if err := p.session.Disconnect(); err != nil {
		p.logger.WithField("error", err).Warn("Disconnect on shutdown failed")
	}
	p.logger.WithField("address", p.cfg.Address).Info("Poller stopped")
}

// Tick runs one cycle: ensure connected, poll, publish. It never returns an error;
// the outcome is recorded in Status and handed to the publishers.
func (p *Poller) Tick(ctx context.Context) {
	at := p.clock.Now()

	if p.session.State() != session.Connected {
		if err := p.reconnect(ctx); err != nil {
			p.fail(ctx, at, err)
			return
		}
	}

	report, err := p.session.Poll(ctx)
	if err != nil {
		if errors.Is(err, session.ErrConnectionLost) {
			p.logger.WithField("address", p.cfg.Address).Warn("Link lost during poll, reconnecting next tick")
		}
		p.fail(ctx, at, err)
		return
	}

	snap := report.Snapshot
	p.mu.Lock()
	p.status.LastAttempt = at
	p.status.LastSuccess = at
	p.status.LastError = ""
	p.status.ConsecutiveFailures = 0
	p.status.Snapshot = &snap
	p.mu.Unlock()

	p.updates.Send(snap)
	p.publish(ctx, Update{Address: p.cfg.Address, At: at, Snapshot: &snap, Readings: len(report.Readings)})

	p.logger.WithFields(logrus.Fields{
		"address":  p.cfg.Address,
		"readings": len(report.Readings),
		"metrics":  len(snap.Sources),
	}).Debug("Poll completed")
}

func (p *Poller) reconnect(ctx context.Context) error {
	if st := p.session.State(); st != session.Disconnected {
		// Connecting or Disconnecting left behind by an interrupted operation
		if err := p.session.Disconnect(); err != nil {
			p.logger.WithField("error", err).Debug("Reset before reconnect failed")
		}
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.session.Connect(ctx, p.cfg.Address)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("reconnect to %s suspended: %w", p.cfg.Address, err)
	}
	return err
}

func (p *Poller) fail(ctx context.Context, at time.Time, err error) {
	if ctx.Err() != nil {
		// shutdown in progress, not a device failure
		return
	}

	p.mu.Lock()
	p.status.LastAttempt = at
	p.status.LastError = err.Error()
	p.status.ConsecutiveFailures++
	failures := p.status.ConsecutiveFailures
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"address":  p.cfg.Address,
		"error":    err,
		"failures": failures,
	}).Warn("Poll tick failed")

	p.publish(ctx, Update{Address: p.cfg.Address, At: at, Err: err, ConsecutiveFailures: failures})
}

func (p *Poller) publish(ctx context.Context, u Update) {
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, u); err != nil {
			p.logger.WithField("error", err).Warn("Publisher failed")
		}
	}
}
