package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/session"
	"github.com/stretchr/testify/suite"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  { t.once.Do(func() { close(t.stopped) }) }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ticker: &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})},
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Ticker(time.Duration) Ticker { return c.ticker }

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSession scripts connect and poll outcomes.
type fakeSession struct {
	mu          sync.Mutex
	state       session.State
	connectErrs []error
	pollErrs    []error
	connects    int
	deadlines   []bool
	polls       int
	disconnects int
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Connect(ctx context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	_, hasDeadline := ctx.Deadline()
	f.deadlines = append(f.deadlines, hasDeadline)
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.state = session.Connected
	return nil
}

func (f *fakeSession) Poll(ctx context.Context) (*session.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.pollErrs) > 0 {
		err := f.pollErrs[0]
		f.pollErrs = f.pollErrs[1:]
		if err != nil {
			if errors.Is(err, session.ErrConnectionLost) {
				f.state = session.Disconnected
			}
			return nil, err
		}
	}
	salt := uint8(40 + f.polls)
	return &session.Report{
		Snapshot: extractor.Snapshot{SaltLevel: &salt, Sources: map[string]string{extractor.MetricSaltLevel: "fff1"}},
		Readings: make([]session.DecodedReading, 1),
	}, nil
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.state = session.Disconnected
	return nil
}

func (f *fakeSession) counts() (connects, polls, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.polls, f.disconnects
}

type PollerTestSuite struct {
	suite.Suite

	clock   *fakeClock
	session *fakeSession
	updates chan Update
	poller  *Poller
	cancel  context.CancelFunc
	done    <-chan error
}

func (s *PollerTestSuite) SetupTest() {
	s.clock = newFakeClock()
	s.session = &fakeSession{}
	s.updates = make(chan Update, 16)
}

func (s *PollerTestSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
		s.waitDone()
		s.cancel = nil
	}
}

func (s *PollerTestSuite) start(cfg Config) {
	cfg.Address = testAddress
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	s.poller = New(s.session, cfg, logger,
		WithClock(s.clock),
		WithPublishers(PublisherFunc(func(_ context.Context, u Update) error {
			s.updates <- u
			return nil
		})),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = s.poller.Start(ctx)
}

func (s *PollerTestSuite) nextUpdate() Update {
	select {
	case u := <-s.updates:
		return u
	case <-time.After(2 * time.Second):
		s.FailNow("tick MUST publish an update")
		return Update{}
	}
}

func (s *PollerTestSuite) tick() Update {
	s.clock.ticker.ch <- s.clock.Now()
	return s.nextUpdate()
}

func (s *PollerTestSuite) waitDone() error {
	select {
	case err := <-s.done:
		return err
	case <-time.After(2 * time.Second):
		s.FailNow("poller MUST stop after cancellation")
		return nil
	}
}

func (s *PollerTestSuite) TestFirstTickRunsImmediately() {
	// GOAL: Verify the loop polls without waiting for the first interval
	//
	// TEST SCENARIO: Disconnected session → start → connect + poll happen before any tick is sent

	s.start(Config{Interval: time.Hour})

	u := s.nextUpdate()
	s.NoError(u.Err)
	s.Require().NotNil(u.Snapshot)
	s.Equal(uint8(41), *u.Snapshot.SaltLevel)
	s.Equal(1, u.Readings)
	s.Equal(testAddress, u.Address)

	connects, polls, _ := s.session.counts()
	s.Equal(1, connects)
	s.Equal(1, polls)

	select {
	case snap := <-s.poller.Updates():
		s.Equal(uint8(41), *snap.SaltLevel, "latest snapshot MUST be streamed")
	case <-time.After(time.Second):
		s.Fail("snapshot stream MUST receive the first snapshot")
	}
}

func (s *PollerTestSuite) TestReconnectLeavesTimeoutToSession() {
	// GOAL: Verify the connect timeout has a single owner, the session
	//
	// TEST SCENARIO: start → reconnect → the context handed to Connect carries no poller deadline

	s.start(Config{Interval: time.Hour})
	s.NoError(s.nextUpdate().Err)

	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	s.Equal([]bool{false}, s.session.deadlines, "poller MUST NOT impose its own connect deadline")
}

func (s *PollerTestSuite) TestReconnectFailureDoesNotStopLoop() {
	// GOAL: Verify a failed reconnect is a transient tick failure
	//
	// TEST SCENARIO: Connect fails on ticks 1 and 2 → both ticks complete with an error update → tick 3 connects and polls

	s.session.connectErrs = []error{
		&session.ConnectionError{Address: testAddress, Err: errors.New("connection refused")},
		&session.ConnectionError{Address: testAddress, Err: errors.New("connection refused")},
	}
	s.start(Config{Interval: time.Minute})

	first := s.nextUpdate()
	s.Error(first.Err)
	s.Nil(first.Snapshot)
	s.Equal(1, first.ConsecutiveFailures)

	second := s.tick()
	s.Error(second.Err, "tick with the session Disconnected MUST attempt to connect again")
	s.Equal(2, second.ConsecutiveFailures)

	third := s.tick()
	s.NoError(third.Err)
	s.Require().NotNil(third.Snapshot)

	connects, polls, _ := s.session.counts()
	s.Equal(3, connects)
	s.Equal(1, polls)

	st := s.poller.Status()
	s.Zero(st.ConsecutiveFailures, "success MUST reset the failure count")
	s.Empty(st.LastError)
	s.Equal(session.Connected, st.State)
}

func (s *PollerTestSuite) TestConnectionLostTriggersReconnect() {
	s.session.pollErrs = []error{nil, session.ErrConnectionLost}
	s.start(Config{Interval: time.Minute})

	s.NoError(s.nextUpdate().Err)

	lost := s.tick()
	s.ErrorIs(lost.Err, session.ErrConnectionLost)

	recovered := s.tick()
	s.NoError(recovered.Err)

	connects, polls, _ := s.session.counts()
	s.Equal(2, connects, "lost link MUST be re-established on the next tick")
	s.Equal(3, polls)
}

func (s *PollerTestSuite) TestBreakerSuspendsReconnects() {
	// GOAL: Verify repeated connect failures open the breaker and stop hammering the device
	//
	// TEST SCENARIO: Breaker threshold 2, every connect fails → third tick fails fast without calling Connect

	refused := errors.New("connection refused")
	s.session.connectErrs = []error{refused, refused, refused, refused}
	s.start(Config{Interval: time.Minute, BreakerFailures: 2, BreakerTimeout: time.Hour})

	s.Error(s.nextUpdate().Err)
	s.Error(s.tick().Err)

	suspended := s.tick()
	s.Require().Error(suspended.Err)
	s.Contains(suspended.Err.Error(), "suspended")

	connects, _, _ := s.session.counts()
	s.Equal(2, connects, "open breaker MUST NOT call Connect")
	s.Equal("open", s.poller.Status().Breaker)
}

func (s *PollerTestSuite) TestStaleness() {
	s.start(Config{Interval: time.Minute})
	s.NoError(s.nextUpdate().Err)

	st := s.poller.Status()
	s.False(st.Stale)
	s.Require().NotNil(st.Snapshot)

	s.clock.Advance(2 * time.Minute)
	s.False(s.poller.Status().Stale, "within three intervals MUST NOT be stale")

	s.clock.Advance(2 * time.Minute)
	s.True(s.poller.Status().Stale, "no success for more than three intervals MUST be stale")
}

func (s *PollerTestSuite) TestStreamStatsCountMissedSnapshots() {
	// GOAL: Verify Status reports how many snapshots a slow Updates reader missed
	//
	// TEST SCENARIO: three successful ticks, nobody reading Updates → sent 3, overwritten 2, one pending

	s.start(Config{Interval: time.Minute})
	s.NoError(s.nextUpdate().Err)
	s.NoError(s.tick().Err)
	s.NoError(s.tick().Err)

	s.Equal(StreamStats{Sent: 3, Overwritten: 2, Pending: 1}, s.poller.Status().Stream)

	snap := <-s.poller.Updates()
	s.Equal(uint8(43), *snap.SaltLevel, "the reader MUST see the newest snapshot")
	s.Equal(0, s.poller.Status().Stream.Pending)
}

func (s *PollerTestSuite) TestStaleBeforeFirstSuccess() {
	s.session.connectErrs = []error{errors.New("connection refused")}
	s.start(Config{Interval: time.Minute})
	s.Error(s.nextUpdate().Err)

	st := s.poller.Status()
	s.True(st.Stale)
	s.Nil(st.Snapshot)
	s.Equal("connection refused", st.LastError)
}

func (s *PollerTestSuite) TestCancellationDisconnects() {
	// GOAL: Verify shutdown is observed at the wait point and disconnects the session
	//
	// TEST SCENARIO: One successful tick → cancel → Run returns context.Canceled, session disconnected, ticker stopped

	s.start(Config{Interval: time.Minute})
	s.NoError(s.nextUpdate().Err)

	s.cancel()
	s.ErrorIs(s.waitDone(), context.Canceled)
	s.cancel = nil

	_, _, disconnects := s.session.counts()
	s.Equal(1, disconnects)
	s.Equal(session.Disconnected, s.session.State())

	select {
	case <-s.clock.ticker.stopped:
	default:
		s.Fail("ticker MUST be stopped")
	}

	for range s.poller.Updates() {
	}
}

func (s *PollerTestSuite) TestPublisherErrorIgnored() {
	failing := PublisherFunc(func(context.Context, Update) error { return errors.New("broker unavailable") })
	s.poller = New(s.session, Config{Address: testAddress}, nil,
		WithClock(s.clock),
		WithPublishers(failing, PublisherFunc(func(_ context.Context, u Update) error {
			s.updates <- u
			return nil
		})),
	)

	s.poller.Tick(context.Background())

	u := s.nextUpdate()
	s.NoError(u.Err, "a failing publisher MUST NOT fail the tick or starve later publishers")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Interval != DefaultInterval || cfg.StaleAfter != 3*DefaultInterval || cfg.BreakerFailures != DefaultBreakerFailures {
		t.Fatalf("defaults MUST be applied, got %+v", cfg)
	}
}

func TestPollerTestSuite(t *testing.T) {
	suite.Run(t, new(PollerTestSuite))
}
