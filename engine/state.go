package engine

// State is the orchestrator's position in the submission state machine:
//
//	Idle -> AwaitingCompletion -> (ExecutingAction -> AwaitingCompletion)* -> Finalizing -> Idle
type State int32

const (
	StateIdle State = iota
	StateAwaitingCompletion
	StateExecutingAction
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateExecutingAction:
		return "executing_action"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}
