package govoice

// State is the pipeline lifecycle state.
//
// Transitions: StateStopped → StateStarting → StateRunning →
// StateStopping → StateStopped. StateError is entered from StateStarting
// or StateRunning when the device or a stage fails fatally; Stop from
// StateError returns to StateStopped.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
