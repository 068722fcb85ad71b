package mqtt311

import "sync"

// ConnectionState is the externally observable lifecycle state of a
// client connection.
type ConnectionState int

const (
	// StateDisconnected is the initial state, and the terminal state
	// after an explicit disconnect.
	StateDisconnected ConnectionState = iota

	// StateConnecting means Connect was called and the handshake has
	// not completed yet.
	StateConnecting

	// StateConnected means the broker handshake succeeded.
	StateConnected

	// StateInterrupted means the transport was lost unexpectedly while
	// connected. The transport keeps reconnecting underneath.
	StateInterrupted
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// stateMachine owns the connection lifecycle. It reacts to transport
// signals and explicit connect/disconnect calls; it never retries
// anything itself. The connection count distinguishes the first
// successful handshake (count goes 0 to 1, observable as "connect")
// from later ones (observable as "resume").
type stateMachine struct {
	mu              sync.Mutex
	state           ConnectionState
	connectionCount uint64
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateDisconnected}
}

// State returns the current connection state.
func (m *stateMachine) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionCount returns the number of successful handshakes so far.
func (m *stateMachine) ConnectionCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionCount
}

// BeginConnect transitions to Connecting. It reports false if the
// machine is already Connecting, Connected or Interrupted, in which
// case the caller must not open a second transport.
func (m *stateMachine) BeginConnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDisconnected {
		return false
	}
	m.state = StateConnecting
	return true
}

// HandshakeComplete transitions to Connected and increments the
// connection count. It reports whether this completion is a resume
// (any successful handshake after the first) and the reconnect count
// to surface in the resume event.
func (m *stateMachine) HandshakeComplete() (resumed bool, reconnectCount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connectionCount++
	m.state = StateConnected

	if m.connectionCount == 1 {
		return false, 0
	}
	return true, m.connectionCount - 1
}

// HandshakeFailed transitions back to Disconnected after a handshake
// error before the first successful connect.
func (m *stateMachine) HandshakeFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateConnecting {
		m.state = StateDisconnected
	}
}

// TransportLost reacts to an unexpected transport loss. It reports
// true if the machine was Connected, meaning an interrupt event must
// be emitted; losses in any other state are ignored.
func (m *stateMachine) TransportLost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return false
	}
	m.state = StateInterrupted
	return true
}

// DisconnectComplete transitions to Disconnected after the transport
// confirmed close. It reports false if the machine was already
// Disconnected, making explicit disconnect idempotent.
func (m *stateMachine) DisconnectComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisconnected {
		return false
	}
	m.state = StateDisconnected
	return true
}
