package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixora/pixora/pkg/models"
	"github.com/pixora/pixora/pkg/protocol"
	"github.com/pixora/pixora/pkg/session"
	"github.com/pixora/pixora/pkg/workflow"
)

type fakeEnhancer struct {
	err   error
	panic bool
}

func (f *fakeEnhancer) Enhance(_ context.Context, rawPrompt string, _ map[string]any, _ string) (string, error) {
	if f.panic {
		panic("enhancer exploded")
	}

	if f.err != nil {
		return "", f.err
	}

	return rawPrompt + ", photorealistic", nil
}

type fakeGuardrail struct {
	blocked bool
	err     error
}

func (f *fakeGuardrail) Validate(_ context.Context, _ string, _ string) (*models.ValidationResult, error) {
	if f.err != nil {
		return nil, f.err
	}

	if f.blocked {
		return &models.ValidationResult{Valid: false, BlockedReasons: []string{"blocked keyword: explicit"}}, nil
	}

	return &models.ValidationResult{Valid: true}, nil
}

type fakeGenerator struct {
	mu        sync.Mutex
	calls     int
	failCalls map[int]bool
	failAll   bool
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, size models.ImageSize) (*models.GeneratedImage, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.failAll || f.failCalls[call] {
		return nil, errors.New("provider unavailable")
	}

	return &models.GeneratedImage{
		ID:     fmt.Sprintf("img-%d", call),
		Prompt: prompt,
		Size:   size,
		Data:   []byte{0x89, 0x50, 0x4e, 0x47},
	}, nil
}

type fakeCategorizer struct {
	err error
}

func (f *fakeCategorizer) Categorize(_ context.Context, _ *models.GeneratedImage) (*models.Categorization, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &models.Categorization{Primary: "landscape", Tags: []string{"landscape", "mountain"}}, nil
}

type fakeFileStore struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeFileStore) Save(_ context.Context, image *models.GeneratedImage, category string) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	path := fmt.Sprintf("/data/%s/%s.png", category, image.ID)

	f.mu.Lock()
	f.saved = append(f.saved, path)
	f.mu.Unlock()

	return path, nil
}

type fakeMemory struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeMemory) Record(_ context.Context, _, _, _ string, _ []*models.GeneratedImage) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	return f.err
}

func healthyAgents() protocol.Agents {
	return protocol.Agents{
		Enhancer:    &fakeEnhancer{},
		Guardrail:   &fakeGuardrail{},
		Generator:   &fakeGenerator{},
		Categorizer: &fakeCategorizer{},
		Files:       &fakeFileStore{},
		Memory:      &fakeMemory{},
	}
}

func newTestCoordinator(agents protocol.Agents) (*Coordinator, *workflow.Registry, *session.Store) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := workflow.NewRegistry(logger)
	sessions := session.NewStore(logger)

	coord := New(logger, registry, sessions, agents, nil, nil, Config{BatchConcurrency: 2})

	return coord, registry, sessions
}

func TestSubmitCompletesAllStages(t *testing.T) {
	coord, registry, sessions := newTestCoordinator(healthyAgents())

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "a mountain lake",
		Count:  3,
	})

	require.NotNil(t, result)
	assert.Equal(t, models.WorkflowStatusCompleted, result.Status)
	assert.Equal(t, "a mountain lake", result.OriginalPrompt)
	assert.Equal(t, "a mountain lake, photorealistic", result.EnhancedPrompt)
	assert.Len(t, result.Images, 3)
	assert.Empty(t, result.ItemErrors)
	assert.Empty(t, result.FailedStage)

	for i, image := range result.Images {
		assert.Equal(t, i, image.Index)
		assert.Equal(t, "landscape", image.Category)
		assert.NotEmpty(t, image.StoragePath)
	}

	// Completed workflows are retired into history.
	assert.Equal(t, 0, registry.ActiveCount())
	assert.Equal(t, 1, registry.HistoryCount())

	wf, found := registry.Find(result.WorkflowID)
	require.True(t, found)
	assert.Equal(t, models.WorkflowStatusCompleted, wf.Status)
	assert.InDelta(t, 100.0, wf.Progress, 0.001)

	// The run leaves a conversation turn and workflow context behind.
	sess, ok := sessions.GetByUser("user-1")
	require.True(t, ok)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "a mountain lake", sess.Turns[0].UserMessage)

	wfCtx := sessions.WorkflowContext(sess.ID, result.WorkflowID)
	assert.Equal(t, "completed", wfCtx["status"])
}

func TestSubmitPartialBatchStillCompletes(t *testing.T) {
	agents := healthyAgents()
	agents.Generator = &fakeGenerator{failCalls: map[int]bool{2: true}}

	coord, _, _ := newTestCoordinator(agents)

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "city at night",
		Count:  4,
	})

	assert.Equal(t, models.WorkflowStatusCompleted, result.Status)
	assert.Len(t, result.Images, 3)
	require.Len(t, result.ItemErrors, 1)
	assert.Equal(t, "provider unavailable", result.ItemErrors[0].Error)
}

func TestSubmitAllItemsFailedFailsWorkflow(t *testing.T) {
	agents := healthyAgents()
	agents.Generator = &fakeGenerator{failAll: true}

	coord, registry, _ := newTestCoordinator(agents)

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "city at night",
		Count:  3,
	})

	assert.Equal(t, models.WorkflowStatusFailed, result.Status)
	assert.Equal(t, StageGenerateImages, result.FailedStage)
	assert.Empty(t, result.Images)
	assert.Len(t, result.ItemErrors, 3)

	wf, found := registry.Find(result.WorkflowID)
	require.True(t, found)
	assert.Equal(t, models.WorkflowStatusFailed, wf.Status)
}

func TestSubmitBlockedPromptFailsValidationStage(t *testing.T) {
	agents := healthyAgents()
	agents.Guardrail = &fakeGuardrail{blocked: true}
	generator := &fakeGenerator{}
	agents.Generator = generator

	coord, _, _ := newTestCoordinator(agents)

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "something",
		Count:  2,
	})

	assert.Equal(t, models.WorkflowStatusFailed, result.Status)
	assert.Equal(t, StageValidateSafety, result.FailedStage)
	assert.Contains(t, result.Error, "prompt blocked")

	// Later stages never ran.
	assert.Equal(t, 0, generator.calls)
}

func TestSubmitEnhancerErrorFailsFirstStage(t *testing.T) {
	agents := healthyAgents()
	agents.Enhancer = &fakeEnhancer{err: errors.New("model timeout")}

	coord, _, _ := newTestCoordinator(agents)

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "a dog",
		Count:  1,
	})

	assert.Equal(t, models.WorkflowStatusFailed, result.Status)
	assert.Equal(t, StageEnhancePrompt, result.FailedStage)
	assert.Contains(t, result.Error, "model timeout")
}

func TestSubmitPanickingCollaboratorIsContained(t *testing.T) {
	agents := healthyAgents()
	agents.Enhancer = &fakeEnhancer{panic: true}

	coord, _, _ := newTestCoordinator(agents)

	var result *models.WorkflowResult

	require.NotPanics(t, func() {
		result = coord.Submit(context.Background(), models.GenerationRequest{
			UserID: "user-1",
			Prompt: "a dog",
			Count:  1,
		})
	})

	assert.Equal(t, models.WorkflowStatusFailed, result.Status)
	assert.Contains(t, result.Error, "panicked")
}

func TestSubmitMemoryFailureIsSoft(t *testing.T) {
	agents := healthyAgents()
	agents.Memory = &fakeMemory{err: errors.New("redis down")}

	coord, _, _ := newTestCoordinator(agents)

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "a cat",
		Count:  1,
	})

	assert.Equal(t, models.WorkflowStatusCompleted, result.Status)
	assert.Len(t, result.Images, 1)
	assert.Empty(t, result.Error)
}

func TestSubmitWithoutMemoryBackendSkipsMemoryStage(t *testing.T) {
	agents := healthyAgents()
	agents.Memory = nil

	coord, registry, _ := newTestCoordinator(agents)

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "a harbor at dawn",
		Count:  1,
	})

	require.Equal(t, models.WorkflowStatusCompleted, result.Status)

	wf, found := registry.Find(result.WorkflowID)
	require.True(t, found)
	assert.InDelta(t, 100.0, wf.Progress, 0.001)

	var memoryStep *models.WorkflowStep
	for _, step := range wf.Steps {
		if step.Name == StageUpdateMemory {
			memoryStep = step
		}
	}

	require.NotNil(t, memoryStep)
	assert.Equal(t, models.StepStatusSkipped, memoryStep.Status)
}

func TestCancelBeforeSubmitStopsPipelineEarly(t *testing.T) {
	agents := healthyAgents()
	generator := &fakeGenerator{}
	agents.Generator = generator

	coord, registry, sessions := newTestCoordinator(agents)

	// Cancel mid-run via the enhancer, which runs before generation.
	agents.Enhancer = &cancellingEnhancer{coord: coord, registry: registry}
	coord.agents = agents

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "sunset",
		Count:  2,
	})

	assert.Equal(t, models.WorkflowStatusCancelled, result.Status)
	assert.Equal(t, 0, generator.calls)

	// Cancelled runs still leave a turn and workflow context behind.
	sess, ok := sessions.GetByUser("user-1")
	require.True(t, ok)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "Generation cancelled", sess.Turns[0].SystemResponse)

	wfCtx := sessions.WorkflowContext(sess.ID, result.WorkflowID)
	assert.Equal(t, "cancelled", wfCtx["status"])
}

// cancellingEnhancer cancels the only active workflow from inside the
// first stage, exercising the between-stage cancellation check.
type cancellingEnhancer struct {
	coord    *Coordinator
	registry *workflow.Registry
}

func (f *cancellingEnhancer) Enhance(ctx context.Context, rawPrompt string, _ map[string]any, userID string) (string, error) {
	for _, wf := range f.registry.ListForUser(userID) {
		f.coord.Cancel(ctx, wf.ID)
	}

	return rawPrompt, nil
}

func TestCancelUnknownWorkflow(t *testing.T) {
	coord, _, _ := newTestCoordinator(healthyAgents())

	assert.False(t, coord.Cancel(context.Background(), "nope"))
}

func TestCancelTerminalWorkflowIsRejected(t *testing.T) {
	coord, _, _ := newTestCoordinator(healthyAgents())

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "a cat",
		Count:  1,
	})

	assert.False(t, coord.Cancel(context.Background(), result.WorkflowID))

	status, found := coord.Status(result.WorkflowID)
	require.True(t, found)
	assert.Equal(t, models.WorkflowStatusCompleted, status.Status)
}

func TestStatusUnknownWorkflow(t *testing.T) {
	coord, _, _ := newTestCoordinator(healthyAgents())

	_, found := coord.Status("missing")
	assert.False(t, found)
}

func TestStatusAfterCompletion(t *testing.T) {
	coord, _, _ := newTestCoordinator(healthyAgents())

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "a cat",
		Count:  1,
	})

	status, found := coord.Status(result.WorkflowID)
	require.True(t, found)
	assert.Equal(t, models.WorkflowStatusCompleted, status.Status)
	assert.InDelta(t, 100.0, status.Progress, 0.001)
}

func TestSubmitDefaultsCountAndSize(t *testing.T) {
	coord, _, _ := newTestCoordinator(healthyAgents())

	result := coord.Submit(context.Background(), models.GenerationRequest{
		UserID: "user-1",
		Prompt: "a cat",
	})

	require.Len(t, result.Images, 1)
	assert.Equal(t, defaultSize, result.Images[0].Size)
}

func TestSubmitReusesExistingSession(t *testing.T) {
	coord, _, sessions := newTestCoordinator(healthyAgents())

	sessionID := sessions.Create("user-1")
	sessions.SetPreferences(sessionID, map[string]any{"style": "cinematic"})

	coord.Submit(context.Background(), models.GenerationRequest{
		UserID:    "user-1",
		SessionID: sessionID,
		Prompt:    "a cat",
		Count:     1,
	})

	sess, ok := sessions.Get(sessionID)
	require.True(t, ok)
	assert.Len(t, sess.Turns, 1)
	assert.Equal(t, 1, sessions.Stats().ActiveSessions)
}
