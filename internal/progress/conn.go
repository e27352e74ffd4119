package progress

import (
	"fmt"
	"sync"
	"time"
)

// ConnState is the delivery connection's lifecycle state, modeled
// independently of any business logic.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateStale        ConnState = "stale"
	StateReconnecting ConnState = "reconnecting"
)

var allowedTransitions = map[ConnState][]ConnState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateDisconnected},
	StateConnected:    {StateStale, StateReconnecting, StateDisconnected},
	StateStale:        {StateReconnecting, StateConnected, StateDisconnected},
	StateReconnecting: {StateConnected, StateDisconnected},
}

// ConnStateMachine tracks delivery-connection state and enforces legal
// transitions. A connection goes stale when no traffic has been observed
// within the configured interval; staleness justifies reconnection.
type ConnStateMachine struct {
	mu            sync.Mutex
	state         ConnState
	lastActivity  time.Time
	staleInterval time.Duration
}

func NewConnStateMachine(staleInterval time.Duration) *ConnStateMachine {
	if staleInterval <= 0 {
		staleInterval = 30 * time.Second
	}
	return &ConnStateMachine{
		state:         StateDisconnected,
		staleInterval: staleInterval,
	}
}

func (m *ConnStateMachine) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the target state, rejecting transitions the lifecycle
// does not allow.
func (m *ConnStateMachine) Transition(to ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range allowedTransitions[m.state] {
		if allowed == to {
			m.state = to
			if to == StateConnected {
				m.lastActivity = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("illegal connection transition %s -> %s", m.state, to)
}

// Touch records traffic, clearing staleness when connected.
func (m *ConnStateMachine) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = time.Now()
	if m.state == StateStale {
		m.state = StateConnected
	}
}

// CheckStale flips a quiet connected link to stale and reports the state.
func (m *ConnStateMachine) CheckStale() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnected && time.Since(m.lastActivity) > m.staleInterval {
		m.state = StateStale
	}
	return m.state
}
