package wifi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/capture"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/monitor"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/runner"
)

const iwDev = `phy#0
	Interface wlan0
		type managed
`

const waitTimeout = 2 * time.Second

type fakeSwitcher struct {
	mu       sync.Mutex
	enterErr error
	exitErr  error
	gate     chan struct{}
	enters   []string
	exits    []string
}

func (f *fakeSwitcher) EnterMonitorMode(ctx context.Context, iface string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enters = append(f.enters, iface)
	return f.enterErr
}

func (f *fakeSwitcher) ExitMonitorMode(ctx context.Context, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits = append(f.exits, iface)
	return f.exitErr
}

func (f *fakeSwitcher) MonitorName(iface string) string { return iface + "mon" }

func (f *fakeSwitcher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enters), len(f.exits)
}

type fakeSession struct {
	mu      sync.Mutex
	stopErr error
	stops   int
}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return s.stopErr
}

func (s *fakeSession) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type recordCall struct {
	iface  string
	period time.Duration
}

type fakeRecorder struct {
	mu      sync.Mutex
	session *fakeSession
	err     error
	calls   []recordCall
}

func (r *fakeRecorder) Start(ctx context.Context, iface string, period time.Duration) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordCall{iface, period})
	if r.err != nil {
		return nil, r.err
	}
	return r.session, nil
}

func (r *fakeRecorder) recorded() []recordCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordCall(nil), r.calls...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventRecorder) add(ev Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventRecorder) count(kind EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (e *eventRecorder) first(kind EventKind) (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

// start runs c until the test ends
func start(t *testing.T, c *Controller) *eventRecorder {
	t.Helper()
	events := &eventRecorder{}
	c.AddObserver(events.add)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Error("controller did not stop")
		}
	})
	return events
}

func waitFor(t *testing.T, c *Controller, m Mode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, c.WaitFor(ctx, m), "waiting for %s, at %s", m, c.Mode())
}

func newFakeController(sw *fakeSwitcher, rec *fakeRecorder) *Controller {
	return NewController(sw, rec, Options{Interface: "wlan0", DefaultPeriod: 30 * time.Second}, logger.Discard())
}

func TestController_EndToEnd(t *testing.T) {
	m := &runner.MockRunner{}
	m.OnRun("iw dev", runner.Result{Stdout: iwDev}, nil)
	m.OnRun("iw phy phy0 interface add wlan0mon type monitor", runner.Result{}, nil).Once()
	m.OnRun("ifconfig wlan0mon up", runner.Result{}, nil).Once()
	m.OnRun("iw dev wlan0 del", runner.Result{}, nil).Once()
	m.OnRun("iw phy phy0 interface add wlan0 type managed", runner.Result{}, nil).Once()
	m.OnRun("iw dev wlan0mon del", runner.Result{}, nil).Once()
	m.OnRun("ifconfig wlan0 up", runner.Result{}, nil).Once()

	sess := &fakeSession{}
	rec := &fakeRecorder{session: sess}
	c := NewController(monitor.NewPipeline(m, "mon", logger.Discard()), rec,
		Options{Interface: "wlan0", DefaultPeriod: time.Minute}, logger.Discard())
	events := start(t, c)

	assert.Equal(t, Dormant, c.Mode())
	c.WakeUp()
	waitFor(t, c, Monitoring)

	c.Record(60 * time.Second)
	waitFor(t, c, Capturing)
	assert.Equal(t, []recordCall{{"wlan0mon", 60 * time.Second}}, rec.recorded())

	c.Pause()
	waitFor(t, c, Monitoring)
	assert.Equal(t, 1, sess.stopCount())

	c.Sleep()
	waitFor(t, c, Dormant)

	m.AssertExpectations(t)
	assert.Equal(t, 4, events.count(EventModeChanged))
	assert.Zero(t, events.count(EventTransitionFailed))
}

func TestController_WakeIsIdempotent(t *testing.T) {
	sw := &fakeSwitcher{}
	rec := &fakeRecorder{session: &fakeSession{}}
	c := newFakeController(sw, rec)
	events := start(t, c)

	c.WakeUp()
	waitFor(t, c, Monitoring)
	c.WakeUp()
	require.Eventually(t, func() bool { return events.count(EventIgnored) == 1 }, waitTimeout, time.Millisecond)

	c.Record(0)
	waitFor(t, c, Capturing)
	c.WakeUp()
	require.Eventually(t, func() bool { return events.count(EventIgnored) == 2 }, waitTimeout, time.Millisecond)

	enters, exits := sw.counts()
	assert.Equal(t, 1, enters)
	assert.Zero(t, exits)
	assert.Equal(t, Capturing, c.Mode())
}

func TestController_RecordUsesDefaultPeriod(t *testing.T) {
	sw := &fakeSwitcher{}
	rec := &fakeRecorder{session: &fakeSession{}}
	c := newFakeController(sw, rec)
	start(t, c)

	c.WakeUp()
	c.Record(0)
	waitFor(t, c, Capturing)
	assert.Equal(t, []recordCall{{"wlan0mon", 30 * time.Second}}, rec.recorded())
}

func TestController_SleepFromCapturingEndsDormant(t *testing.T) {
	sw := &fakeSwitcher{}
	sess := &fakeSession{}
	c := newFakeController(sw, &fakeRecorder{session: sess})
	start(t, c)

	c.WakeUp()
	c.Record(time.Second)
	waitFor(t, c, Capturing)

	c.Sleep()
	waitFor(t, c, Dormant)
	assert.Equal(t, 1, sess.stopCount())
	_, exits := sw.counts()
	assert.Equal(t, 1, exits)
}

func TestController_SleepFromCapturingStaysCapturingWhenPauseFails(t *testing.T) {
	sw := &fakeSwitcher{}
	sess := &fakeSession{stopErr: errors.New("capture process did not exit")}
	c := newFakeController(sw, &fakeRecorder{session: sess})
	events := start(t, c)

	c.WakeUp()
	c.Record(time.Second)
	waitFor(t, c, Capturing)

	c.Sleep()
	require.Eventually(t, func() bool { return events.count(EventDiscarded) == 1 }, waitTimeout, time.Millisecond)
	waitFor(t, c, Capturing)

	ev, ok := events.first(EventDiscarded)
	require.True(t, ok)
	assert.Equal(t, ActionSleep, ev.Request.Action)
	_, exits := sw.counts()
	assert.Zero(t, exits, "deferred sleep must not be retried")
}

func TestController_LastDeferredRequestWins(t *testing.T) {
	sw := &fakeSwitcher{gate: make(chan struct{})}
	rec := &fakeRecorder{session: &fakeSession{}}
	c := newFakeController(sw, rec)
	events := start(t, c)

	c.WakeUp()
	c.Record(time.Second)
	c.Sleep()
	require.Eventually(t, func() bool { return events.count(EventDeferred) == 2 }, waitTimeout, time.Millisecond)

	close(sw.gate)
	waitFor(t, c, Dormant)
	assert.Empty(t, rec.recorded())
	_, exits := sw.counts()
	assert.Equal(t, 1, exits)
}

func TestController_FatalStepAbortsWake(t *testing.T) {
	m := &runner.MockRunner{}
	m.OnRun("iw dev", runner.Result{Stdout: iwDev}, nil)
	m.OnRun("iw phy phy0 interface add wlan0mon type monitor",
		runner.Result{ExitCode: 161, Stderr: "command failed: Operation not supported (-95)"}, nil).Once()
	// best-effort compensation
	m.OnRun("iw phy phy0 interface add wlan0 type managed", runner.Result{ExitCode: 240, Stderr: "busy"}, nil).Maybe()

	c := NewController(monitor.NewPipeline(m, "mon", logger.Discard()), &fakeRecorder{},
		Options{Interface: "wlan0"}, logger.Discard())
	events := start(t, c)

	c.WakeUp()
	require.Eventually(t, func() bool { return events.count(EventTransitionFailed) == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, Dormant, c.Mode())

	ev, _ := events.first(EventTransitionFailed)
	var stepErr *monitor.StepError
	require.True(t, errors.As(ev.Err, &stepErr))
	assert.Equal(t, "add monitor interface", stepErr.Step)
	assert.Contains(t, stepErr.Stderr, "Operation not supported")

	m.AssertNotCalled(t, "Run", mock.Anything, "ifconfig wlan0mon up")
	m.AssertNotCalled(t, "Run", mock.Anything, "iw dev wlan0 del")
}

func TestController_AlreadyInMonitorModeSucceeds(t *testing.T) {
	m := &runner.MockRunner{}
	m.OnRun("iw dev", runner.Result{Stdout: iwDev}, nil)
	m.OnRun("iw phy phy0 interface add wlan0mon type monitor",
		runner.Result{ExitCode: monitor.ExitAlreadyMonitor}, nil).Once()
	m.OnRun("ifconfig wlan0mon up", runner.Result{}, nil).Once()
	m.OnRun("iw dev wlan0 del", runner.Result{ExitCode: 237, Stderr: "No such device"}, nil).Once()

	c := NewController(monitor.NewPipeline(m, "mon", logger.Discard()), &fakeRecorder{},
		Options{Interface: "wlan0"}, logger.Discard())
	start(t, c)

	c.WakeUp()
	waitFor(t, c, Monitoring)
	m.AssertExpectations(t)
}

// silentSource emits its startup signal only after delay
type silentSource struct {
	delay   time.Duration
	packets chan capture.Packet
	errs    chan error
}

func (s *silentSource) Start(iface string) error {
	go func() {
		time.Sleep(s.delay)
		s.errs <- errors.New("listening on " + iface)
	}()
	return nil
}

func (s *silentSource) Packets() <-chan capture.Packet { return s.packets }
func (s *silentSource) Errors() <-chan error           { return s.errs }
func (s *silentSource) Stop() error                    { return nil }

func TestController_ReadySignalAfterTimeoutFailsRecord(t *testing.T) {
	cc := capture.NewController(func() capture.Source {
		return &silentSource{
			delay:   100 * time.Millisecond,
			packets: make(chan capture.Packet),
			errs:    make(chan error, 1),
		}
	}, capture.Config{QueryTimeout: 20 * time.Millisecond}, logger.Discard())

	sw := &fakeSwitcher{}
	c := NewController(sw, FromCapture(cc), Options{Interface: "wlan0", DefaultPeriod: time.Minute}, logger.Discard())
	cc.SetObserver(c.HandleCaptureEvent)
	events := start(t, c)

	c.WakeUp()
	waitFor(t, c, Monitoring)
	c.Record(0)

	require.Eventually(t, func() bool { return events.count(EventTransitionFailed) == 1 }, waitTimeout, time.Millisecond)
	ev, _ := events.first(EventTransitionFailed)
	assert.ErrorIs(t, ev.Err, capture.ErrCaptureTimeout)
	require.Eventually(t, func() bool { return events.count(EventSessionError) == 1 }, waitTimeout, time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, Monitoring, c.Mode())
}

func TestController_ChangeInterface(t *testing.T) {
	sw := &fakeSwitcher{}
	c := newFakeController(sw, &fakeRecorder{})
	events := start(t, c)

	assert.Error(t, c.ChangeInterface("wlan0; rm -rf /"))
	assert.Error(t, c.ChangeInterface(""))
	assert.Error(t, c.ChangeInterface("wlan0123456789"), "monitor twin exceeds the name limit")

	require.NoError(t, c.ChangeInterface("wlan1"))
	require.Eventually(t, func() bool { return c.Snapshot().Interface == "wlan1" }, waitTimeout, time.Millisecond)

	c.WakeUp()
	waitFor(t, c, Monitoring)
	require.NoError(t, c.ChangeInterface("wlan2"))
	require.Eventually(t, func() bool { return events.count(EventIgnored) == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, "wlan1", c.Snapshot().Interface)
	sw.mu.Lock()
	defer sw.mu.Unlock()
	assert.Equal(t, []string{"wlan1"}, sw.enters)
}

func TestController_RunStopsLiveSession(t *testing.T) {
	sess := &fakeSession{}
	c := newFakeController(&fakeSwitcher{}, &fakeRecorder{session: sess})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	c.WakeUp()
	c.Record(0)
	waitFor(t, c, Capturing)

	assert.Error(t, c.Run(ctx), "second Run must fail")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitTimeout):
		t.Fatal("controller did not stop")
	}
	assert.Equal(t, 1, sess.stopCount())

	// requests after shutdown are dropped
	c.WakeUp()
	assert.ErrorIs(t, c.WaitFor(context.Background(), Monitoring), ErrStopped)
}
