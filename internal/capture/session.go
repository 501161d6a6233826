package capture

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
)

// Config holds session controller settings
type Config struct {
	// QueryTimeout bounds the readiness handshake
	QueryTimeout time.Duration
	// PacketTypes lists reported frame types; empty reports every type
	PacketTypes []string
	// LogRatePerSecond caps packet log lines; zero means unlimited
	LogRatePerSecond int
}

// Controller starts and stops capture sessions
type Controller struct {
	newSource SourceFactory
	cfg       Config
	types     map[string]bool
	log       *logger.Logger

	mu       sync.Mutex
	observer func(Event)
}

// NewController creates a Controller that builds a new Source per session
func NewController(factory SourceFactory, cfg Config, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetLogger()
	}
	types := make(map[string]bool, len(cfg.PacketTypes))
	for _, t := range cfg.PacketTypes {
		types[t] = true
	}
	return &Controller{newSource: factory, cfg: cfg, types: types, log: log}
}

// SetObserver registers fn to receive session events. fn must not block.
func (c *Controller) SetObserver(fn func(Event)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Start creates a source on iface and waits for it to become ready. period
// is the interval of the seen-devices report; zero disables it.
func (c *Controller) Start(ctx context.Context, iface string, period time.Duration) (*Session, error) {
	c.log.Info("[capture] Starting recording process on %s...", iface)

	src := c.newSource()
	if err := src.Start(iface); err != nil {
		return nil, fmt.Errorf("failed to start capture on %s: %w", iface, err)
	}

	s := &Session{
		ID:      uuid.New().String(),
		Iface:   iface,
		Period:  period,
		ctrl:    c,
		src:     src,
		stopCh:  make(chan struct{}),
		seen:    make(map[string]sighting),
		limiter: newLimiter(c.cfg.LogRatePerSecond),
	}

	s.wg.Add(1)
	go s.forwardPackets()

	if err := s.awaitReady(ctx); err != nil {
		c.log.Error("[capture] Session %s failed to start: %v", s.ID, err)
		s.shutdown()
		return nil, err
	}

	s.wg.Add(1)
	go s.watchFaults()
	if period > 0 {
		s.wg.Add(1)
		go s.report()
	}

	c.log.Info("[capture] Session %s recording on %s", s.ID, iface)
	return s, nil
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

type sighting struct {
	signal  int
	packets int
	last    time.Time
}

// Session is a running capture. It exists only while the adapter is
// capturing.
type Session struct {
	ID     string
	Iface  string
	Period time.Duration

	ctrl    *Controller
	src     Source
	limiter *rate.Limiter

	mu    sync.Mutex
	state State
	seen  map[string]sighting

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// State returns the session lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// awaitReady completes the startup handshake. The first error signal from
// the source means it is listening; if none arrives within QueryTimeout the
// start fails. Whichever comes first decides.
func (s *Session) awaitReady(ctx context.Context) error {
	timer := time.NewTimer(s.ctrl.cfg.QueryTimeout)
	defer timer.Stop()

	select {
	case sig, ok := <-s.src.Errors():
		if !ok {
			return ErrSourceClosed
		}
		s.ctrl.log.Debug("[capture] Startup signal from source: %v", sig)
		s.setState(Ready)
		s.ctrl.emit(Event{SessionID: s.ID, Kind: EventReady})
		return nil
	case <-timer.C:
		s.ctrl.emit(Event{SessionID: s.ID, Kind: EventError, Err: ErrCaptureTimeout})
		return ErrCaptureTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forwardPackets is the packet handler. It stops with the session.
func (s *Session) forwardPackets() {
	defer s.wg.Done()
	packets := s.src.Packets()
	for {
		select {
		case <-s.stopCh:
			return
		case p, ok := <-packets:
			if !ok {
				return
			}
			s.handlePacket(p)
		}
	}
}

func (s *Session) handlePacket(p Packet) {
	if len(s.ctrl.types) > 0 && !s.ctrl.types[p.Type] {
		return
	}
	if p.MACAddress == "" {
		return
	}

	s.mu.Lock()
	entry := s.seen[p.MACAddress]
	entry.packets++
	entry.last = p.Timestamp
	if p.HasSignal {
		entry.signal = p.SignalStrength
	}
	s.seen[p.MACAddress] = entry
	s.mu.Unlock()

	if s.limiter.Allow() {
		s.ctrl.log.Info("[capture] ==> %s : %d dBm (%s)", p.MACAddress, p.SignalStrength, p.Type)
	}
}

// watchFaults reports errors raised after the handshake
func (s *Session) watchFaults() {
	defer s.wg.Done()
	errs := s.src.Errors()
	for {
		select {
		case <-s.stopCh:
			return
		case err, ok := <-errs:
			if !ok {
				s.ctrl.log.Error("[capture] Session %s: capture source exited", s.ID)
				s.ctrl.emit(Event{SessionID: s.ID, Kind: EventError, Err: ErrSourceClosed})
				return
			}
			s.ctrl.log.Error("[capture] Session %s fault: %v", s.ID, err)
			s.ctrl.emit(Event{SessionID: s.ID, Kind: EventError, Err: err})
		}
	}
}

// report logs the devices seen during each period and resets the table
func (s *Session) report() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.flushReport()
		}
	}
}

func (s *Session) flushReport() {
	s.mu.Lock()
	seen := s.seen
	s.seen = make(map[string]sighting)
	s.mu.Unlock()

	macs := make([]string, 0, len(seen))
	for mac := range seen {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	s.ctrl.log.Info("[capture] Session %s: %d devices in the last %s", s.ID, len(macs), s.Period)
	for _, mac := range macs {
		e := seen[mac]
		s.ctrl.log.Info("[capture]   %s signal=%d dBm packets=%d", mac, e.signal, e.packets)
	}
}

// Seen returns the MAC addresses observed in the current period
func (s *Session) Seen() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.seen))
	for mac, e := range s.seen {
		out[mac] = e.signal
	}
	return out
}

// Stop cancels the report timer, detaches the packet handler and stops the
// source. It always succeeds; source errors are only logged.
func (s *Session) Stop() error {
	s.ctrl.log.Info("[capture] Stopping recording...")
	s.shutdown()
	s.ctrl.emit(Event{SessionID: s.ID, Kind: EventStopped})
	return nil
}

func (s *Session) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		if err := s.src.Stop(); err != nil {
			s.ctrl.log.Warn("[capture] Failed to stop capture source: %v", err)
		}
		s.setState(Stopped)
	})
}
