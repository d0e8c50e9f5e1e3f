package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/pixora/pkg/models"
)

// CancelledStepError is recorded on every running step that a workflow
// cancellation forces to failed.
const CancelledStepError = "cancelled"

// Machine is the state machine for a single workflow. All mutations go
// through TransitionStep and Cancel; workflow status and progress are
// re-derived from the step statuses after every transition, so two
// machines fed the same transition sequence always agree.
//
// A Machine carries its own lock. Callers from concurrent requests may
// share one instance freely.
type Machine struct {
	mu sync.Mutex
	wf *models.Workflow
}

// NewMachine creates a workflow with all steps pending, in the order given.
func NewMachine(userID string, defs []models.StepDefinition) *Machine {
	steps := make([]*models.WorkflowStep, 0, len(defs))
	for _, def := range defs {
		steps = append(steps, &models.WorkflowStep{
			ID:          uuid.New().String(),
			Name:        def.Name,
			Description: def.Description,
			Status:      models.StepStatusPending,
			Metadata:    def.Metadata,
		})
	}

	return &Machine{
		wf: &models.Workflow{
			ID:        uuid.New().String(),
			UserID:    userID,
			Status:    models.WorkflowStatusPending,
			Steps:     steps,
			StartedAt: time.Now(),
			Metadata:  map[string]any{},
		},
	}
}

func (m *Machine) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.wf.ID
}

func (m *Machine) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.wf.UserID
}

func (m *Machine) Status() models.WorkflowStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.wf.Status
}

// StepID returns the id of the step created for the named stage, so the
// coordinator can address steps it defined by name.
func (m *Machine) StepID(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, step := range m.wf.Steps {
		if step.Name == name {
			return step.ID, true
		}
	}

	return "", false
}

// Snapshot returns a copy of the workflow safe to read outside the lock.
// Step payloads are shared; steps and the slice itself are copied.
func (m *Machine) Snapshot() *models.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() *models.Workflow {
	wf := *m.wf
	wf.Steps = make([]*models.WorkflowStep, len(m.wf.Steps))

	for i, step := range m.wf.Steps {
		s := *step
		wf.Steps[i] = &s
	}

	return &wf
}

// TransitionStep applies one step transition and re-derives workflow
// status and progress. It rejects transitions on closed workflows, on
// unknown steps and on steps that already reached a terminal status.
func (m *Machine) TransitionStep(stepID string, status models.StepStatus, output any, stepErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wf.Status == models.WorkflowStatusCancelled {
		return newError("TransitionStep", m.wf.ID, stepID, ErrWorkflowClosed)
	}

	step := m.wf.StepByID(stepID)
	if step == nil {
		return newError("TransitionStep", m.wf.ID, stepID, ErrStepNotFound)
	}

	if step.Status.IsTerminal() {
		return newError("TransitionStep", m.wf.ID, stepID, ErrInvalidTransition)
	}

	// Skipping is only allowed before the step has started.
	if status == models.StepStatusPending ||
		(status == models.StepStatusSkipped && step.Status != models.StepStatusPending) {
		return newError("TransitionStep", m.wf.ID, stepID, ErrInvalidTransition)
	}

	now := time.Now()
	step.Status = status

	switch status {
	case models.StepStatusRunning:
		step.StartedAt = &now
		m.wf.CurrentStep = step.Name
	case models.StepStatusCompleted, models.StepStatusFailed:
		step.EndedAt = &now
		step.Output = output
		step.Error = stepErr
	case models.StepStatusSkipped:
		step.EndedAt = &now
	}

	m.deriveProgress()
	m.deriveStatus()

	return nil
}

// Cancel moves the workflow to cancelled and forces every running step to
// failed. Cancelling an already-terminal workflow is a no-op returning false.
func (m *Machine) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wf.Status.IsTerminal() {
		return false
	}

	now := time.Now()
	m.wf.Status = models.WorkflowStatusCancelled
	m.wf.EndedAt = &now

	for _, step := range m.wf.Steps {
		if step.Status == models.StepStatusRunning {
			step.Status = models.StepStatusFailed
			step.Error = CancelledStepError
			step.EndedAt = &now
		}
	}

	return true
}

// finalize forces a terminal status without touching the steps. Used by the
// registry when retiring a workflow to history.
func (m *Machine) finalize(status models.WorkflowStatus, errText string) *models.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wf.Status = status
	if m.wf.EndedAt == nil {
		now := time.Now()
		m.wf.EndedAt = &now
	}

	if errText != "" {
		m.wf.Metadata["error"] = errText
	}

	return m.snapshotLocked()
}

func (m *Machine) deriveProgress() {
	if len(m.wf.Steps) == 0 {
		m.wf.Progress = 0

		return
	}

	done := 0

	for _, step := range m.wf.Steps {
		if step.Status == models.StepStatusCompleted || step.Status == models.StepStatusSkipped {
			done++
		}
	}

	m.wf.Progress = float64(done) / float64(len(m.wf.Steps)) * 100
}

func (m *Machine) deriveStatus() {
	anyFailed := false
	allDone := true

	for _, step := range m.wf.Steps {
		if step.Status == models.StepStatusFailed {
			anyFailed = true
		}

		if step.Status != models.StepStatusCompleted && step.Status != models.StepStatusSkipped {
			allDone = false
		}
	}

	switch {
	case anyFailed:
		m.wf.Status = models.WorkflowStatusFailed
	case allDone:
		m.wf.Status = models.WorkflowStatusCompleted
	case m.wf.Status == models.WorkflowStatusPending:
		m.wf.Status = models.WorkflowStatusRunning
	}

	if m.wf.Status.IsTerminal() && m.wf.EndedAt == nil {
		now := time.Now()
		m.wf.EndedAt = &now
	}
}
