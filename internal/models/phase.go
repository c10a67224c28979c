package models

type Phase string

const (
	PhaseInvestigating   Phase = "investigating"
	PhaseAwaitingVerdict Phase = "awaiting-verdict"
	PhaseResolved        Phase = "resolved"
)

type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomeTimeout   Outcome = "timeout"
)

// PhaseState is a point-in-time view of the countdown state machine.
type PhaseState struct {
	Phase                  Phase
	Outcome                Outcome
	InvestigationRemaining int
	VerdictRemaining       int
	Ticking                bool
}

// Remaining returns the live countdown for the current phase.
func (s PhaseState) Remaining() int {
	switch s.Phase {
	case PhaseInvestigating:
		return s.InvestigationRemaining
	case PhaseAwaitingVerdict:
		return s.VerdictRemaining
	case PhaseResolved:
		return 0
	}
	return 0
}
