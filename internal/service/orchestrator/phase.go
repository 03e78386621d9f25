package orchestrator

// Phase is the state of one submitted message or bootstrap run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseRetryPending
	PhaseDelivered
	PhaseGaveUp
	// PhaseRejected means the precondition check stopped the flow before
	// any request was made.
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseRetryPending:
		return "retry_pending"
	case PhaseDelivered:
		return "delivered"
	case PhaseGaveUp:
		return "gave_up"
	case PhaseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result describes how a flow ended.
type Result struct {
	Phase    Phase `json:"phase"`
	Attempts int   `json:"attempts"`
}
