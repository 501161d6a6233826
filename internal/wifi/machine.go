// Package wifi sequences the operating mode of a wireless adapter between
// Dormant, Monitoring and Capturing.
//
// The machine is a plain State value and a pure Step function. Step never
// performs I/O: it returns the effects (pipeline runs, session start/stop,
// observer notifications) that the Controller's event loop executes, and the
// outcome of each effect is fed back in as another input.
package wifi

import (
	"fmt"
	"time"
)

// Mode is the adapter operating mode
type Mode int

const (
	Dormant Mode = iota
	Monitoring
	Capturing
)

func (m Mode) String() string {
	switch m {
	case Dormant:
		return "dormant"
	case Monitoring:
		return "monitoring"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Action is a symbolic request
type Action int

const (
	ActionWake Action = iota
	ActionSleep
	ActionRecord
	ActionPause
	ActionChangeInterface
)

func (a Action) String() string {
	switch a {
	case ActionWake:
		return "wake"
	case ActionSleep:
		return "sleep"
	case ActionRecord:
		return "record"
	case ActionPause:
		return "pause"
	case ActionChangeInterface:
		return "changeInterface"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Request is an immutable transition request. Period is used by record,
// Interface by changeInterface.
type Request struct {
	Action    Action
	Period    time.Duration
	Interface string
}

func (r Request) String() string {
	switch r.Action {
	case ActionRecord:
		return fmt.Sprintf("record(%s)", r.Period)
	case ActionChangeInterface:
		return fmt.Sprintf("changeInterface(%s)", r.Interface)
	default:
		return r.Action.String()
	}
}

// Session is a live capture session handle
type Session interface {
	Stop() error
}

// Transition is the operation currently in flight
type Transition struct {
	Request Request
	Target  Mode
}

// Deferred is a request waiting for its target mode
type Deferred struct {
	Request Request
	Target  Mode
}

// State is the complete controller state. Session is set only in Capturing.
type State struct {
	Mode      Mode
	Interface string
	InFlight  *Transition
	Deferred  *Deferred
	Session   Session
}

// Input is anything Step consumes: a Request, an Outcome or a SessionFault
type Input interface {
	input()
}

// Outcome completes the transition in flight. Session is set when a capture
// start succeeded.
type Outcome struct {
	Err     error
	Session Session
}

// SessionFault is a capture error raised while Capturing or during start
type SessionFault struct {
	Err error
}

func (Request) input()      {}
func (Outcome) input()      {}
func (SessionFault) input() {}

// Effect is work for the event loop
type Effect interface {
	effect()
}

// EnterMonitor runs the enter-monitor pipeline on Interface
type EnterMonitor struct {
	Interface string
}

// ExitMonitor runs the exit-monitor pipeline on Interface. A compensating
// exit runs detached and produces no Outcome.
type ExitMonitor struct {
	Interface    string
	Compensating bool
}

// StartCapture starts a session on the monitor twin of Interface
type StartCapture struct {
	Interface string
	Period    time.Duration
}

// StopCapture stops Session
type StopCapture struct {
	Session Session
}

// Notify delivers Event to observers
type Notify struct {
	Event Event
}

func (EnterMonitor) effect() {}
func (ExitMonitor) effect()  {}
func (StartCapture) effect() {}
func (StopCapture) effect()  {}
func (Notify) effect()       {}

// EventKind classifies observer events
type EventKind int

const (
	EventModeChanged EventKind = iota
	EventTransitionFailed
	EventIgnored
	EventDeferred
	EventDiscarded
	EventSessionError
	EventInterfaceChanged
)

func (k EventKind) String() string {
	switch k {
	case EventModeChanged:
		return "mode-changed"
	case EventTransitionFailed:
		return "transition-failed"
	case EventIgnored:
		return "ignored"
	case EventDeferred:
		return "deferred"
	case EventDiscarded:
		return "discarded"
	case EventSessionError:
		return "session-error"
	case EventInterfaceChanged:
		return "interface-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to observers. Mode is the mode after the event.
type Event struct {
	Kind    EventKind
	Mode    Mode
	Request Request
	Err     error
}

// Legal reports whether a is handled in mode m. Everything else is ignored.
func Legal(m Mode, a Action) bool {
	switch m {
	case Dormant:
		return a == ActionWake || a == ActionChangeInterface
	case Monitoring:
		return a == ActionSleep || a == ActionRecord
	case Capturing:
		return a == ActionPause || a == ActionSleep
	}
	return false
}

// Initial returns the starting state for iface
func Initial(iface string) State {
	return State{Mode: Dormant, Interface: iface}
}

// Step applies one input to s
func Step(s State, in Input) (State, []Effect) {
	switch in := in.(type) {
	case Request:
		return onRequest(s, in)
	case Outcome:
		return onOutcome(s, in)
	case SessionFault:
		return s, []Effect{notify(EventSessionError, s.Mode, Request{}, in.Err)}
	}
	return s, nil
}

func notify(kind EventKind, m Mode, r Request, err error) Effect {
	return Notify{Event: Event{Kind: kind, Mode: m, Request: r, Err: err}}
}

func onRequest(s State, r Request) (State, []Effect) {
	if s.InFlight != nil {
		// Requests racing a transition wait for its target mode
		if !Legal(s.InFlight.Target, r.Action) {
			return s, []Effect{notify(EventIgnored, s.Mode, r, nil)}
		}
		s.Deferred = &Deferred{Request: r, Target: s.InFlight.Target}
		return s, []Effect{notify(EventDeferred, s.Mode, r, nil)}
	}
	if !Legal(s.Mode, r.Action) {
		return s, []Effect{notify(EventIgnored, s.Mode, r, nil)}
	}

	switch s.Mode {
	case Dormant:
		if r.Action == ActionChangeInterface {
			if r.Interface != "" {
				s.Interface = r.Interface
			}
			return s, []Effect{notify(EventInterfaceChanged, s.Mode, r, nil)}
		}
		s.InFlight = &Transition{Request: r, Target: Monitoring}
		return s, []Effect{EnterMonitor{Interface: s.Interface}}

	case Monitoring:
		if r.Action == ActionRecord {
			s.InFlight = &Transition{Request: r, Target: Capturing}
			return s, []Effect{StartCapture{Interface: s.Interface, Period: r.Period}}
		}
		s.InFlight = &Transition{Request: r, Target: Dormant}
		return s, []Effect{ExitMonitor{Interface: s.Interface}}

	case Capturing:
		var effects []Effect
		if r.Action == ActionSleep {
			s.Deferred = &Deferred{Request: r, Target: Monitoring}
			effects = append(effects, notify(EventDeferred, s.Mode, r, nil))
		}
		pause := Request{Action: ActionPause}
		s.InFlight = &Transition{Request: pause, Target: Monitoring}
		return s, append(effects, StopCapture{Session: s.Session})
	}
	return s, nil
}

func onOutcome(s State, o Outcome) (State, []Effect) {
	t := s.InFlight
	if t == nil {
		return s, nil
	}
	s.InFlight = nil

	if o.Err != nil {
		effects := []Effect{notify(EventTransitionFailed, s.Mode, t.Request, o.Err)}
		if s.Deferred != nil && s.Deferred.Target == t.Target {
			effects = append(effects, notify(EventDiscarded, s.Mode, s.Deferred.Request, nil))
			s.Deferred = nil
		}
		if t.Request.Action == ActionWake {
			effects = append(effects, ExitMonitor{Interface: s.Interface, Compensating: true})
		}
		return s, effects
	}

	s.Mode = t.Target
	switch s.Mode {
	case Capturing:
		s.Session = o.Session
	default:
		s.Session = nil
	}
	effects := []Effect{notify(EventModeChanged, s.Mode, t.Request, nil)}

	if d := s.Deferred; d != nil && d.Target == s.Mode {
		s.Deferred = nil
		var more []Effect
		s, more = onRequest(s, d.Request)
		effects = append(effects, more...)
	}
	return s, effects
}
