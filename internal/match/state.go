package match

// Phase is a step of the orchestrator state machine.
type Phase string

const (
	PhaseSetup          Phase = "setup"
	PhaseRequestMoves   Phase = "request_moves"
	PhaseAwaitResponses Phase = "await_responses"
	PhaseValidate       Phase = "validate"
	PhaseApply          Phase = "apply"
	PhaseCheckEnd       Phase = "check_end"
	PhaseTerminate      Phase = "terminate"
)

// Status is the coarse match status.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusOver       Status = "OVER"
)

// State is the orchestrator-owned part of a match. Game data lives in the
// rules.
type State struct {
	Status    Status
	Phase     Phase
	TimeIndex int
	History   []Move
}

func (s State) clone() State {
	s.History = append([]Move(nil), s.History...)
	return s
}
