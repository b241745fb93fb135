package dispatch

// jobState is the lifecycle of one dispatch job. stateResolving is passed
// once per dispatch since every job shares the endpoint. Both terminal
// outcomes converge on stateReported.
type jobState int

const (
	stateCreated jobState = iota
	stateResolving
	stateSending
	stateSucceeded
	stateFailed
	stateReported
)

func (s jobState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateResolving:
		return "resolving"
	case stateSending:
		return "sending"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	case stateReported:
		return "reported"
	default:
		return "unknown"
	}
}
