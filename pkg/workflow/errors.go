// Package workflow provides the pipeline workflow state machine and the
// in-process registry that tracks active and finished workflows.
package workflow

import (
	"errors"
	"fmt"
)

// Standard workflow error types.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepNotFound indicates a step was not found within the workflow.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidTransition indicates a step transition that the state machine forbids.
	ErrInvalidTransition = errors.New("invalid step transition")

	// ErrWorkflowClosed indicates the workflow is terminal and rejects further transitions.
	ErrWorkflowClosed = errors.New("workflow is closed")
)

// Error wraps workflow state-machine errors with operation context.
type Error struct {
	Op         string // Operation being performed (e.g., "TransitionStep", "Cancel")
	WorkflowID string
	StepID     string // Step ID if applicable
	Err        error
}

func (e *Error) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s failed for step %s in workflow %s: %v", e.Op, e.StepID, e.WorkflowID, e.Err)
	}

	return fmt.Sprintf("%s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, workflowID, stepID string, err error) *Error {
	return &Error{Op: op, WorkflowID: workflowID, StepID: stepID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsInvalidTransition checks if an error indicates a forbidden step transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsWorkflowClosed checks if an error indicates the workflow no longer accepts transitions.
func IsWorkflowClosed(err error) bool {
	return errors.Is(err, ErrWorkflowClosed)
}
