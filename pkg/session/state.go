package session

import "time"

// State is a chip session state.
type State string

const (
	StateIdle              State = "idle"
	StateDiscovering       State = "discovering"
	StateConnecting        State = "connecting"
	StateConnected         State = "connected"
	StateAwaitingAck       State = "awaiting_ack"
	StateAwaitingSignature State = "awaiting_signature"
	StateComplete          State = "complete"
	StateFailed            State = "failed"
	StateDisconnected      State = "disconnected"
)

// IsTerminal reports whether no further transitions can leave s.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed || s == StateDisconnected
}

// validTransitions lists the forward edges of the state machine. Failed is
// reachable from every non-terminal state and is not listed.
var validTransitions = map[State][]State{
	StateIdle:              {StateDiscovering, StateConnecting},
	StateDiscovering:       {StateConnecting},
	StateConnecting:        {StateConnected},
	StateConnected:         {StateAwaitingAck, StateDisconnected},
	StateAwaitingAck:       {StateAwaitingSignature, StateDisconnected},
	StateAwaitingSignature: {StateComplete, StateDisconnected},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From   State
	To     State
	Reason Reason
	At     time.Time
}
