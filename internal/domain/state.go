package domain

// State is the position of an order in its pipeline.
type State int32

const (
	StatePending State = iota
	StateCheckingAvailability
	StatePricing
	StatePaying
	StateReserving
	StateNotifying
	StateDone
	StateFailed
	StateTimedOut
)

var stateNames = [...]string{
	StatePending:              "pending",
	StateCheckingAvailability: "checking_availability",
	StatePricing:              "pricing",
	StatePaying:               "paying",
	StateReserving:            "reserving",
	StateNotifying:            "notifying",
	StateDone:                 "done",
	StateFailed:               "failed",
	StateTimedOut:             "timed_out",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateTimedOut
}
