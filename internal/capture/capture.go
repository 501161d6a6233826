// Package capture runs packet capture sessions on a monitor interface.
//
// The capture source reports both packets and an error signal. The source in
// use signals successful startup by emitting an error right after it starts
// listening, so the first error of a session is taken as the ready marker
// (see Session.awaitReady). Later errors are genuine faults.
package capture

import (
	"errors"
	"time"
)

// Frame types reported by capture sources
const (
	TypeProbeRequest  = "Probe Request"
	TypeProbeResponse = "Probe Response"
	TypeBeacon        = "Beacon"
	TypeData          = "Data"
	TypeOther         = "other"
)

// ErrCaptureTimeout is returned when a source gives no ready signal within
// the query timeout
var ErrCaptureTimeout = errors.New("capture: timeout waiting for capture to start")

// ErrSourceClosed is returned when a source exits during startup
var ErrSourceClosed = errors.New("capture: source exited before becoming ready")

// Packet is one decoded frame
type Packet struct {
	Type           string
	MACAddress     string
	SignalStrength int // dBm
	HasSignal      bool
	Timestamp      time.Time
}

// Source is a capture mechanism bound to one interface. Packets and Errors
// are drained by the session until it stops; Stop releases the mechanism.
type Source interface {
	// Start begins capturing on iface. It may fail immediately, e.g. on an
	// unknown interface.
	Start(iface string) error
	Packets() <-chan Packet
	Errors() <-chan error
	Stop() error
}

// SourceFactory creates a fresh Source for each session
type SourceFactory func() Source

// State is the lifecycle state of a session
type State int

const (
	Starting State = iota
	Ready
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EventKind classifies session events
type EventKind int

const (
	// EventReady is raised once the readiness handshake completes
	EventReady EventKind = iota
	// EventError is raised on startup timeout and on faults while Ready
	EventError
	// EventStopped is raised when a session stops
	EventStopped
)

// Event is delivered to the controller's observer
type Event struct {
	SessionID string
	Kind      EventKind
	Err       error
}
