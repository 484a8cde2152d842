package harness

// State is a step of the run lifecycle. A run only moves forward.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateLoading
	StateSettling
	StateReporting
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateLoading:
		return "loading"
	case StateSettling:
		return "settling"
	case StateReporting:
		return "reporting"
	case StateTornDown:
		return "torn down"
	default:
		return "unknown"
	}
}
