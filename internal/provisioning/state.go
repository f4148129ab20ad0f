package provisioning

// State is the provisioning service state.
type State int32

const (
	StateIdle State = iota
	StateServing
	StateError
	StateRestartPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateServing:
		return "SERVING"
	case StateError:
		return "ERROR"
	case StateRestartPending:
		return "RESTART_PENDING"
	default:
		return "UNKNOWN"
	}
}
