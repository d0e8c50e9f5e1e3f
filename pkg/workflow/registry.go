package workflow

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pixora/pixora/pkg/models"
)

// DefaultMaxHistory bounds the number of finished workflows retained.
const DefaultMaxHistory = 1000

// Registry tracks every live workflow machine and a bounded,
// insertion-ordered history of finished ones. The registry lock guards
// only the index structures; each machine mutation happens under the
// machine's own lock so unrelated workflows never serialize on each other.
type Registry struct {
	mu           sync.RWMutex
	active       map[string]*Machine
	history      map[string]*models.Workflow
	historyOrder []string
	maxHistory   int
	logger       *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		active:     make(map[string]*Machine),
		history:    make(map[string]*models.Workflow),
		maxHistory: DefaultMaxHistory,
		logger:     logger.With("module", "workflow_registry"),
	}
}

// Create builds a new workflow machine with the steps in the given order
// and stores it as active.
func (r *Registry) Create(userID string, defs []models.StepDefinition) *Machine {
	machine := NewMachine(userID, defs)

	r.mu.Lock()
	r.active[machine.ID()] = machine
	r.mu.Unlock()

	r.logger.Info("Created workflow", "workflow_id", machine.ID(), "user_id", userID, "steps", len(defs))

	return machine
}

// Get returns the active machine for the given id.
func (r *Registry) Get(workflowID string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	machine, ok := r.active[workflowID]

	return machine, ok
}

// Find returns a snapshot of the workflow, looking at active workflows
// first and then at history.
func (r *Registry) Find(workflowID string) (*models.Workflow, bool) {
	r.mu.RLock()
	machine, isActive := r.active[workflowID]
	historical, inHistory := r.history[workflowID]
	r.mu.RUnlock()

	if isActive {
		return machine.Snapshot(), true
	}

	if inHistory {
		return historical, true
	}

	return nil, false
}

// Complete forces the workflow to completed and retires it to history.
func (r *Registry) Complete(workflowID string) error {
	return r.retire(workflowID, models.WorkflowStatusCompleted, "")
}

// Fail forces the workflow to failed, records the error in its metadata
// and retires it to history.
func (r *Registry) Fail(workflowID string, errText string) error {
	return r.retire(workflowID, models.WorkflowStatusFailed, errText)
}

// CancelWorkflow cancels an active workflow and retires it to history.
// Returns false for unknown or already-terminal workflows.
func (r *Registry) CancelWorkflow(workflowID string) bool {
	machine, ok := r.Get(workflowID)
	if !ok {
		return false
	}

	if !machine.Cancel() {
		return false
	}

	r.moveToHistory(workflowID, machine.Snapshot())
	r.logger.Info("Cancelled workflow", "workflow_id", workflowID)

	return true
}

func (r *Registry) retire(workflowID string, status models.WorkflowStatus, errText string) error {
	machine, ok := r.Get(workflowID)
	if !ok {
		return newError("Retire", workflowID, "", ErrWorkflowNotFound)
	}

	snapshot := machine.finalize(status, errText)
	r.moveToHistory(workflowID, snapshot)

	r.logger.Info("Retired workflow", "workflow_id", workflowID, "status", status)

	return nil
}

func (r *Registry) moveToHistory(workflowID string, snapshot *models.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, workflowID)

	if _, exists := r.history[workflowID]; !exists {
		r.historyOrder = append(r.historyOrder, workflowID)
	}

	r.history[workflowID] = snapshot

	for len(r.historyOrder) > r.maxHistory {
		oldest := r.historyOrder[0]
		r.historyOrder = r.historyOrder[1:]
		delete(r.history, oldest)
	}
}

// EvictHistoryOlderThan removes finished workflows whose end time precedes
// now minus maxAge. Active workflows are never touched. Returns the number
// of evicted workflows.
func (r *Registry) EvictHistoryOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.historyOrder[:0]
	evicted := 0

	for _, id := range r.historyOrder {
		wf := r.history[id]
		if wf.EndedAt != nil && wf.EndedAt.Before(cutoff) {
			delete(r.history, id)

			evicted++

			continue
		}

		kept = append(kept, id)
	}

	r.historyOrder = kept

	if evicted > 0 {
		r.logger.Info("Evicted finished workflows", "count", evicted)
	}

	return evicted
}

// ListForUser merges the user's active and historical workflows, ordered
// by start time.
func (r *Registry) ListForUser(userID string) []*models.Workflow {
	r.mu.RLock()
	machines := make([]*Machine, 0, len(r.active))

	for _, machine := range r.active {
		machines = append(machines, machine)
	}

	workflows := make([]*models.Workflow, 0)

	for _, wf := range r.history {
		if wf.UserID == userID {
			workflows = append(workflows, wf)
		}
	}
	r.mu.RUnlock()

	// Snapshots are taken outside the registry lock; each one takes the
	// machine lock briefly.
	for _, machine := range machines {
		if machine.UserID() == userID {
			workflows = append(workflows, machine.Snapshot())
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].StartedAt.Before(workflows[j].StartedAt)
	})

	return workflows
}

// ActiveCount returns the number of workflows currently executing.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.active)
}

// HistoryCount returns the number of finished workflows retained.
func (r *Registry) HistoryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.history)
}
