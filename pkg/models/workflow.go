// Package models defines the core domain models for the generation pipeline.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// IsTerminal reports whether no further workflow transitions are possible.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// StepStatus represents the lifecycle state of a single workflow step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether the step can accept no further transitions.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// StepDefinition describes one pipeline stage at workflow creation time.
type StepDefinition struct {
	Name        string         `json:"name"        validate:"required"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// WorkflowStep tracks the execution of one stage within a workflow instance.
// Steps are owned exclusively by their parent workflow.
type WorkflowStep struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      StepStatus     `json:"status"`
	Input       any            `json:"input,omitempty"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Workflow represents one complete pipeline execution for a single user
// request. Progress and Status are always derived from the step statuses
// and must never be written independently of them.
type Workflow struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"     validate:"required"`
	Status      WorkflowStatus  `json:"status"`
	CurrentStep string          `json:"current_step,omitempty"`
	Steps       []*WorkflowStep `json:"steps"`
	Progress    float64         `json:"progress"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// StepByID returns the step with the given id, or nil if absent.
func (w *Workflow) StepByID(stepID string) *WorkflowStep {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}
