package runner

// State is a step of the batch state machine.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateNavigating
	StateComposing
	StateConfirming
	StateRecording
	StateDelaying
	StateDone
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateResolving:  "resolving",
	StateNavigating: "navigating",
	StateComposing:  "composing",
	StateConfirming: "confirming",
	StateRecording:  "recording",
	StateDelaying:   "delaying",
	StateDone:       "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
