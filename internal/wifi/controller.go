package wifi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"EnigmaNetz/Enigma-Wifi-Sensor/config"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/capture"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
)

// ErrStopped is returned by waits on a controller whose loop has exited
var ErrStopped = errors.New("wifi: controller stopped")

// Switcher moves an interface in and out of monitor mode
type Switcher interface {
	EnterMonitorMode(ctx context.Context, iface string) error
	ExitMonitorMode(ctx context.Context, iface string) error
	MonitorName(iface string) string
}

// Recorder starts capture sessions on a monitor interface
type Recorder interface {
	Start(ctx context.Context, iface string, period time.Duration) (Session, error)
}

type captureRecorder struct {
	c *capture.Controller
}

// FromCapture adapts a capture.Controller to a Recorder
func FromCapture(c *capture.Controller) Recorder {
	return captureRecorder{c: c}
}

func (r captureRecorder) Start(ctx context.Context, iface string, period time.Duration) (Session, error) {
	s, err := r.c.Start(ctx, iface, period)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options configures a Controller
type Options struct {
	// Interface is the managed interface name
	Interface string
	// DefaultPeriod is used by Record when called with a non-positive period
	DefaultPeriod time.Duration
}

// Controller runs the state machine on a single event loop goroutine.
// Public methods only enqueue; outcomes of effects are posted back to the
// loop, so Mode and the deferred slot are never touched elsewhere.
type Controller struct {
	switcher Switcher
	recorder Recorder
	opts     Options
	log      *logger.Logger

	inbox   chan Input
	done    chan struct{}
	running sync.Once
	effects sync.WaitGroup

	mu        sync.Mutex
	snapshot  State
	changed   chan struct{}
	observers []func(Event)
}

// NewController creates a Dormant controller. Call Run to start it.
func NewController(sw Switcher, rec Recorder, opts Options, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Controller{
		switcher: sw,
		recorder: rec,
		opts:     opts,
		log:      log,
		inbox:    make(chan Input, 16),
		done:     make(chan struct{}),
		snapshot: Initial(opts.Interface),
		changed:  make(chan struct{}),
	}
}

// AddObserver registers fn for every event. fn runs on the event loop and
// must not block.
func (c *Controller) AddObserver(fn func(Event)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// WakeUp requests monitor mode
func (c *Controller) WakeUp() { c.submit(Request{Action: ActionWake}) }

// Sleep requests dormant mode, pausing a capture first
func (c *Controller) Sleep() { c.submit(Request{Action: ActionSleep}) }

// Pause stops the capture session
func (c *Controller) Pause() { c.submit(Request{Action: ActionPause}) }

// Record starts a capture session reporting every period
func (c *Controller) Record(period time.Duration) {
	if period <= 0 {
		period = c.opts.DefaultPeriod
	}
	c.submit(Request{Action: ActionRecord, Period: period})
}

// ChangeInterface switches the managed interface. It only takes effect
// while Dormant; an invalid name is rejected before it reaches the loop.
func (c *Controller) ChangeInterface(name string) error {
	if err := config.ValidateInterfaceName(name); err != nil {
		return err
	}
	if err := config.ValidateInterfaceName(c.switcher.MonitorName(name)); err != nil {
		return fmt.Errorf("monitor interface for %s: %w", name, err)
	}
	c.submit(Request{Action: ActionChangeInterface, Interface: name})
	return nil
}

// HandleCaptureEvent forwards capture session errors to observers. It is
// meant to be registered with capture.Controller.SetObserver.
func (c *Controller) HandleCaptureEvent(ev capture.Event) {
	if ev.Kind == capture.EventError {
		c.post(SessionFault{Err: ev.Err})
	}
}

func (c *Controller) submit(r Request) {
	c.log.Debug("[wifi] Request %s", r)
	c.post(r)
}

func (c *Controller) post(in Input) {
	select {
	case c.inbox <- in:
	case <-c.done:
		// A session started while shutting down has no owner
		if o, ok := in.(Outcome); ok && o.Session != nil {
			o.Session.Stop()
		}
	}
}

// Snapshot returns a copy of the state last settled by the loop
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Mode returns the current mode
func (c *Controller) Mode() Mode {
	return c.Snapshot().Mode
}

// WaitFor blocks until the controller is settled in mode m with nothing in
// flight or pending.
func (c *Controller) WaitFor(ctx context.Context, m Mode) error {
	for {
		c.mu.Lock()
		s, changed := c.snapshot, c.changed
		c.mu.Unlock()
		if s.Mode == m && s.InFlight == nil && s.Deferred == nil {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrStopped
		}
	}
}

// Run processes requests until ctx is canceled. A live capture session is
// stopped on the way out.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.running.Do(func() { started = true })
	if !started {
		return errors.New("wifi: controller already running")
	}

	state := c.Snapshot()
	c.log.Info("[wifi] Controller started on %s (%s)", state.Interface, state.Mode)
	for {
		select {
		case <-ctx.Done():
			close(c.done)
			c.effects.Wait()
			if state.Session != nil {
				c.log.Warn("[wifi] Stopping capture session left running at shutdown")
				if err := state.Session.Stop(); err != nil {
					c.log.Warn("[wifi] Failed to stop capture session: %v", err)
				}
			}
			c.log.Info("[wifi] Controller stopped in %s", state.Mode)
			return ctx.Err()
		case in := <-c.inbox:
			var effects []Effect
			state, effects = Step(state, in)
			c.publish(state)
			c.execute(ctx, effects)
		}
	}
}

func (c *Controller) publish(s State) {
	c.mu.Lock()
	c.snapshot = s
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

func (c *Controller) execute(ctx context.Context, effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case EnterMonitor:
			c.spawn(func() {
				c.post(Outcome{Err: c.switcher.EnterMonitorMode(ctx, e.Interface)})
			})
		case ExitMonitor:
			if e.Compensating {
				c.log.Warn("[wifi] Couldn't enter monitor mode, restoring %s", e.Interface)
				c.spawn(func() {
					if err := c.switcher.ExitMonitorMode(ctx, e.Interface); err != nil {
						c.log.Debug("[wifi] Compensating exit failed: %v", err)
					}
				})
				continue
			}
			c.spawn(func() {
				c.post(Outcome{Err: c.switcher.ExitMonitorMode(ctx, e.Interface)})
			})
		case StartCapture:
			mon := c.switcher.MonitorName(e.Interface)
			c.spawn(func() {
				s, err := c.recorder.Start(ctx, mon, e.Period)
				c.post(Outcome{Session: s, Err: err})
			})
		case StopCapture:
			c.spawn(func() {
				var err error
				if e.Session != nil {
					err = e.Session.Stop()
				}
				c.post(Outcome{Err: err})
			})
		case Notify:
			c.notify(e.Event)
		}
	}
}

func (c *Controller) spawn(fn func()) {
	c.effects.Add(1)
	go func() {
		defer c.effects.Done()
		fn()
	}()
}

func (c *Controller) notify(ev Event) {
	switch ev.Kind {
	case EventModeChanged:
		c.log.Info("[wifi] ============== %s ==============", ev.Mode)
	case EventTransitionFailed:
		c.log.Error("[wifi] %s failed, still %s: %v", ev.Request, ev.Mode, ev.Err)
	case EventSessionError:
		c.log.Error("[wifi] Capture session error: %v", ev.Err)
	case EventInterfaceChanged:
		c.log.Info("[wifi] Interface set to %s", ev.Request.Interface)
	default:
		c.log.Debug("[wifi] %s %s in %s", ev.Request, ev.Kind, ev.Mode)
	}

	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}
