// Package callstate tracks one client's side of a call.
//
// The server relays call messages without remembering anything about them, so
// each client keeps its own machine and reads every inbound call message in
// the light of its current state. At most one call is in progress at a time;
// an offer that arrives while the machine is not Idle is declined with BUSY.
package callstate

import (
	"errors"
	"fmt"
	"sync"
)

type State int

const (
	Idle State = iota
	Dialing
	Ringing
	Connecting
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dialing:
		return "dialing"
	case Ringing:
		return "ringing"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Role int

const (
	NoRole Role = iota
	Caller
	Callee
)

func (r Role) String() string {
	switch r {
	case Caller:
		return "caller"
	case Callee:
		return "callee"
	default:
		return "none"
	}
}

// Outcome describes how the machine interpreted an inbound message.
type Outcome int

const (
	// Ignored means the message did not concern the current call.
	Ignored Outcome = iota
	// Ring means an offer moved the machine to Ringing.
	Ring
	// AutoBusy means an offer arrived during another call and must be
	// answered with BUSY.
	AutoBusy
	// Answered means the callee accepted and the caller moved to Connecting.
	Answered
	// Declined means the callee refused a call that was still Dialing.
	Declined
	// HungUp means the remote side ended a Connecting or Active call.
	HungUp
	// Withdrawn means the caller canceled a call that was Ringing.
	Withdrawn
	// PeerBusy means the callee was already in a call.
	PeerBusy
	// PeerLeft means the remote user disconnected from the server.
	PeerLeft
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Ring:
		return "ring"
	case AutoBusy:
		return "auto_busy"
	case Answered:
		return "answered"
	case Declined:
		return "declined"
	case HungUp:
		return "hung_up"
	case Withdrawn:
		return "withdrawn"
	case PeerBusy:
		return "peer_busy"
	case PeerLeft:
		return "peer_left"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrInvalidTransition is returned when a local action is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("callstate: invalid transition")

// Snapshot is a consistent view of the machine.
type Snapshot struct {
	State State
	Role  Role
	Peer  string
}

// Machine is safe for concurrent use: the connection reader feeds it inbound
// messages while the user drives local actions.
type Machine struct {
	mu    sync.Mutex
	state State
	role  Role
	peer  string
}

func New() *Machine { return &Machine{} }

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Role: m.role, Peer: m.peer}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dial starts an outgoing call to peer. It must be called before MAKE_CALL is
// sent.
func (m *Machine) Dial(peer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return m.invalidLocked("dial")
	}
	if peer == "" {
		return fmt.Errorf("%w: dial without a peer", ErrInvalidTransition)
	}
	m.setLocked(Dialing, Caller, peer)
	return nil
}

// Offer handles CALL_MADE from the given user.
func (m *Machine) Offer(from string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return AutoBusy
	}
	m.setLocked(Ringing, Callee, from)
	return Ring
}

// Accept answers the ringing call. It must be called before ACCEPT_CALL is
// sent.
func (m *Machine) Accept() (peer string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ringing {
		return "", m.invalidLocked("accept")
	}
	m.state = Connecting
	return m.peer, nil
}

// Answer handles CALL_ACCEPTED from the given user.
func (m *Machine) Answer(from string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Dialing || from != m.peer {
		return Ignored
	}
	m.state = Connecting
	return Answered
}

// MediaReady marks the direct peer connection as established.
func (m *Machine) MediaReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connecting {
		return m.invalidLocked("media ready")
	}
	m.state = Active
	return nil
}

// Decline refuses the ringing call and returns the caller to notify with
// REJECT_CALL.
func (m *Machine) Decline() (peer string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ringing {
		return "", m.invalidLocked("decline")
	}
	return m.resetLocked(), nil
}

// Cancel withdraws an outgoing call that has not been answered and returns
// the callee to notify with CANCEL_CALL.
func (m *Machine) Cancel() (peer string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Dialing {
		return "", m.invalidLocked("cancel")
	}
	return m.resetLocked(), nil
}

// Hangup ends a call that was answered and returns the peer to notify with
// REJECT_CALL.
func (m *Machine) Hangup() (peer string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connecting && m.state != Active {
		return "", m.invalidLocked("hang up")
	}
	return m.resetLocked(), nil
}

// Rejected handles CALL_REJECTED. The same message declines a call that is
// still Dialing and ends one that is Connecting or Active.
func (m *Machine) Rejected(from string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from != m.peer {
		return Ignored
	}
	switch m.state {
	case Dialing:
		m.resetLocked()
		return Declined
	case Connecting, Active:
		m.resetLocked()
		return HungUp
	default:
		return Ignored
	}
}

// Canceled handles CALL_CANCELED. A cancel can cross our ACCEPT_CALL on the
// wire, so it also ends a callee's call that is already Connecting.
func (m *Machine) Canceled(from string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from != m.peer || m.role != Callee {
		return Ignored
	}
	if m.state != Ringing && m.state != Connecting {
		return Ignored
	}
	m.resetLocked()
	return Withdrawn
}

// Busy handles BUSY from the callee.
func (m *Machine) Busy(from string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Dialing || from != m.peer {
		return Ignored
	}
	m.resetLocked()
	return PeerBusy
}

// Disconnected handles USER_DISCONNECTED. Losing the peer ends any call with
// them.
func (m *Machine) Disconnected(id string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle || id != m.peer {
		return Ignored
	}
	m.resetLocked()
	return PeerLeft
}

// Reset drops any call without notifying anyone, e.g. after the signaling
// connection itself was lost.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Machine) setLocked(s State, r Role, peer string) {
	m.state, m.role, m.peer = s, r, peer
}

func (m *Machine) resetLocked() string {
	peer := m.peer
	m.setLocked(Idle, NoRole, "")
	return peer
}

func (m *Machine) invalidLocked(action string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, action, m.state)
}
