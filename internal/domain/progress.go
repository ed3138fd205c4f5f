package domain

// TransferStep is one stage of the transfer workflow. Steps are totally
// ordered; a transfer only ever moves to the next step or back to the
// immediately preceding completed step.
type TransferStep string

const (
	StepSelect   TransferStep = "select"
	StepDetails  TransferStep = "details"
	StepReview   TransferStep = "review"
	StepVerify   TransferStep = "verify"
	StepComplete TransferStep = "complete"
)

// StepOrder is the fixed progression of the workflow
var StepOrder = []TransferStep{StepSelect, StepDetails, StepReview, StepVerify, StepComplete}

// StepIndex returns the position of s in the fixed order, or -1 if s is not
// a known step
func StepIndex(s TransferStep) int {
	for i, step := range StepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// NextStep returns the step following s. ok is false when s is terminal or
// unknown.
func NextStep(s TransferStep) (TransferStep, bool) {
	idx := StepIndex(s)
	if idx < 0 || idx == len(StepOrder)-1 {
		return "", false
	}
	return StepOrder[idx+1], true
}

// TransferProgress is the aggregate root of a single workflow session.
// It is created by the Workflow Engine at start, mutated only by the engine,
// and discarded once the transfer completes or is abandoned. It is never
// persisted; durability of the outcome belongs to the settlement system.
type TransferProgress struct {
	CurrentStep    TransferStep      `json:"currentStep"`
	CompletedSteps []TransferStep    `json:"completedSteps"`
	TransferData   TransferData      `json:"transferData"`
	Errors         map[string]string `json:"errors"`
	IsValid        bool              `json:"isValid"`
}

// NewTransferProgress creates a progress aggregate positioned at the select
// step with empty transfer data
func NewTransferProgress() TransferProgress {
	return TransferProgress{
		CurrentStep:    StepSelect,
		CompletedSteps: []TransferStep{},
		Errors:         map[string]string{},
	}
}

// Validate ensures the progress aggregate adheres to the state machine
// invariants: currentStep is a known step and completedSteps is exactly the
// prefix of steps preceding it.
func (p *TransferProgress) Validate() error {
	idx := StepIndex(p.CurrentStep)
	if idx < 0 {
		return &TransferError{Code: ErrCodeInvalidState, Message: "unknown step " + string(p.CurrentStep)}
	}
	if len(p.CompletedSteps) != idx {
		return &TransferError{Code: ErrCodeInvalidState, Message: "completed steps do not form a prefix of the step order"}
	}
	for i, s := range p.CompletedSteps {
		if s != StepOrder[i] {
			return &TransferError{Code: ErrCodeInvalidState, Message: "completed steps out of order"}
		}
	}
	return nil
}

// Terminal reports whether the workflow has reached its final step
func (p *TransferProgress) Terminal() bool {
	return p.CurrentStep == StepComplete
}
