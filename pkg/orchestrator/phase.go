package orchestrator

import "fmt"

// Phase is a state of an orchestration session
type Phase string

const (
	PhaseIdle = Phase("idle")

	// create chain
	PhaseApprovingFactory           = Phase("approving_spender_for_creation")
	PhaseCreating                   = Phase("creating")
	PhaseConfirmingCreation         = Phase("confirming_creation")
	PhaseExtractingAddress          = Phase("extracting_address")
	PhaseApprovingContract          = Phase("approving_created_contract")
	PhaseConfirmingContractApproval = Phase("confirming_contract_approval")

	// cancel chain
	PhaseCheckingPreconditions  = Phase("checking_preconditions")
	PhaseCancelling             = Phase("cancelling")
	PhaseConfirmingCancellation = Phase("confirming_cancellation")

	PhasePersisting = Phase("persisting")

	// terminal
	PhaseSuccess        = Phase("success")
	PhaseError          = Phase("error")
	PhaseUnknownTimeout = Phase("unknown_timeout")
)

// transitions lists the forward moves out of every non-terminal phase.
// Every non-terminal phase may also move to error or unknown_timeout.
var transitions = map[Phase][]Phase{
	PhaseIdle:                       {PhaseApprovingFactory, PhaseCheckingPreconditions},
	PhaseApprovingFactory:           {PhaseCreating},
	PhaseCreating:                   {PhaseConfirmingCreation},
	PhaseConfirmingCreation:         {PhaseExtractingAddress},
	PhaseExtractingAddress:          {PhaseApprovingContract, PhasePersisting},
	PhaseApprovingContract:          {PhaseConfirmingContractApproval},
	PhaseConfirmingContractApproval: {PhaseApprovingContract, PhasePersisting},
	PhaseCheckingPreconditions:      {PhaseCancelling},
	PhaseCancelling:                 {PhaseConfirmingCancellation},
	PhaseConfirmingCancellation:     {PhasePersisting},
	PhasePersisting:                 {PhaseSuccess},
}

// IsTerminal reports whether the session stopped in this phase
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseError || p == PhaseUnknownTimeout
}

// CanTransition reports whether a session in phase from may move to phase to
func CanTransition(from, to Phase) bool {
	if from.IsTerminal() {
		return false
	}
	if to == PhaseError || to == PhaseUnknownTimeout {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned for a move missing from the transition table
type ErrInvalidTransition struct {
	From Phase
	To   Phase
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}
