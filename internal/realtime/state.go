package realtime

// State is the lifecycle state of a [Client].
//
//	Idle -> Connecting -> Subscribing -> Subscribed
//	            |              |             |
//	            +--------------+-------------+--> Reconnecting -> Connecting
//	            |              |             |          |
//	            +--------------+-------------+----------+--> Closed
//
// Closed is terminal. Reconnecting is only entered when the reconnect
// policy is enabled.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribing
	StateSubscribed
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name for JSON APIs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	StateIdle:         {StateConnecting, StateClosed},
	StateConnecting:   {StateSubscribing, StateReconnecting, StateClosed},
	StateSubscribing:  {StateSubscribed, StateReconnecting, StateClosed},
	StateSubscribed:   {StateReconnecting, StateClosed},
	StateReconnecting: {StateConnecting, StateClosed},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
