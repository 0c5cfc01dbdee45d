package fetch

type (
	// State tracks one fetch's progress through the executor. States appear
	// in structured logs so a stalled or aborted fetch can be traced to the
	// exact phase it died in.
	State string
)

const (
	// StateIdle means no request has been issued yet.
	StateIdle State = "idle"

	// StateRequesting means an attempt is in flight.
	StateRequesting State = "requesting"

	// StateWaiting means the previous attempt failed with a retryable
	// category and the executor is sleeping out the backoff.
	StateWaiting State = "waiting"

	// StateSucceeded is the terminal success state.
	StateSucceeded State = "succeeded"

	// StateAborted is the terminal failure state: a non-retryable failure,
	// an exhausted retry budget, or a cancelled context.
	StateAborted State = "aborted"
)

// IsValid checks whether the state is a member of the closed state set.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateRequesting, StateWaiting, StateSucceeded, StateAborted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state ends the fetch.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateAborted
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// stateTransitions is the allowed transition set. Waiting always loops back
// to requesting: backoff exists only between attempts.
var stateTransitions = map[State][]State{
	StateIdle:       {StateRequesting},
	StateRequesting: {StateSucceeded, StateWaiting, StateAborted},
	StateWaiting:    {StateRequesting, StateAborted},
	StateSucceeded:  {},
	StateAborted:    {},
}

// CanTransitionTo reports whether moving from s to next is a legal step in
// the fetch lifecycle.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range stateTransitions[s] {
		if next == allowed {
			return true
		}
	}

	return false
}
