// Package coordinator drives one workflow through the fixed generation
// pipeline, translating collaborator outcomes into step transitions and a
// single terminal result.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pixora/pixora/pkg/eventbus"
	"github.com/pixora/pixora/pkg/events"
	"github.com/pixora/pixora/pkg/models"
	"github.com/pixora/pixora/pkg/otelhelper"
	"github.com/pixora/pixora/pkg/protocol"
	"github.com/pixora/pixora/pkg/session"
	"github.com/pixora/pixora/pkg/workflow"
)

// DefaultBatchConcurrency bounds parallel generation calls per batch.
const DefaultBatchConcurrency = 4

var defaultSize = models.ImageSize{Width: 1024, Height: 1024}

type Config struct {
	// BatchConcurrency is the worker bound for the generation stage.
	BatchConcurrency int
}

// Coordinator owns pipeline execution. Stages run strictly in sequence;
// only the items inside the batch generation stage run concurrently.
//
// Submit never returns an error: every failure is converted into a
// terminal WorkflowResult. A process crash between stage completion and
// persistence loses that workflow's in-memory state; results are only
// durable once the persist stage has written them.
type Coordinator struct {
	registry         *workflow.Registry
	sessions         *session.Store
	agents           protocol.Agents
	eventBus         eventbus.EventBus
	tracer           trace.Tracer
	batchConcurrency int
	logger           *slog.Logger
}

func New(
	logger *slog.Logger,
	registry *workflow.Registry,
	sessions *session.Store,
	agents protocol.Agents,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
	config Config,
) *Coordinator {
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = DefaultBatchConcurrency
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("coordinator")
	}

	return &Coordinator{
		registry:         registry,
		sessions:         sessions,
		agents:           agents,
		eventBus:         eventBus,
		tracer:           tracer,
		batchConcurrency: config.BatchConcurrency,
		logger:           logger.With("module", "coordinator"),
	}
}

// runState carries intermediate stage outputs through one pipeline run.
type runState struct {
	req         models.GenerationRequest
	sessionID   string
	preferences map[string]any
	enhanced    string
	images      []*models.GeneratedImage
	itemErrors  []models.ItemError
}

// Submit runs the full pipeline for one request and returns its terminal
// result. Collaborator failures never escape as errors.
func (c *Coordinator) Submit(ctx context.Context, req models.GenerationRequest) *models.WorkflowResult {
	start := time.Now()

	if req.Count <= 0 {
		req.Count = 1
	}

	if req.Size.Width <= 0 || req.Size.Height <= 0 {
		req.Size = defaultSize
	}

	state := &runState{
		req:       req,
		sessionID: c.resolveSession(req),
	}
	state.preferences = c.mergedPreferences(state.sessionID, req.Preferences)

	defs := make([]models.StepDefinition, 0, len(pipelineStages))
	for _, st := range pipelineStages {
		defs = append(defs, models.StepDefinition{Name: st.name, Description: st.description})
	}

	machine := c.registry.Create(req.UserID, defs)
	workflowID := machine.ID()

	logger := c.logger.With("workflow_id", workflowID, "user_id", req.UserID)
	logger.Info("Starting pipeline", "prompt_length", len(req.Prompt), "count", req.Count)

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "pipeline.run",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.UserIDKey, req.UserID),
		attribute.String(otelhelper.SessionIDKey, state.sessionID),
	)
	defer span.End()

	c.publish(ctx, workflowID, events.WorkflowStarted{
		BaseEvent: c.baseEvent(events.WorkflowStartedEvent, workflowID, req.UserID),
		SessionID: state.sessionID,
		Prompt:    req.Prompt,
		Count:     req.Count,
	})

	for _, st := range pipelineStages {
		// Cancellation is cooperative: check before each stage.
		if machine.Status() == models.WorkflowStatusCancelled {
			logger.Info("Pipeline cancelled, stopping before stage", "stage", st.name)

			return c.cancelledResult(machine, state, start)
		}

		stepID, ok := machine.StepID(st.name)
		if !ok {
			// Unreachable unless stage table and step creation diverge.
			return c.failWorkflow(ctx, machine, state, start, st.name,
				fmt.Errorf("no step for stage %s", st.name))
		}

		if st.name == StageUpdateMemory && c.agents.Memory == nil {
			logger.Info("No memory backend configured, skipping stage", "stage", st.name)

			if err := machine.TransitionStep(stepID, models.StepStatusSkipped, nil, ""); err != nil {
				return c.cancelledResult(machine, state, start)
			}

			c.publish(ctx, workflowID, events.StepSkipped{
				BaseEvent: c.baseEvent(events.StepSkippedEvent, workflowID, req.UserID),
				StepID:    stepID,
				StepName:  st.name,
			})

			continue
		}

		if err := machine.TransitionStep(stepID, models.StepStatusRunning, nil, ""); err != nil {
			if workflow.IsWorkflowClosed(err) {
				return c.cancelledResult(machine, state, start)
			}

			return c.failWorkflow(ctx, machine, state, start, st.name, err)
		}

		c.publish(ctx, workflowID, events.StepStarted{
			BaseEvent: c.baseEvent(events.StepStartedEvent, workflowID, req.UserID),
			StepID:    stepID,
			StepName:  st.name,
		})

		stageStart := time.Now()

		output, err := c.runStage(ctx, st, state)
		if err != nil {
			if st.soft {
				logger.Warn("Soft stage failed, continuing", "stage", st.name, "error", err)

				if terr := machine.TransitionStep(stepID, models.StepStatusCompleted,
					map[string]any{"soft_error": err.Error()}, ""); terr != nil {
					return c.cancelledResult(machine, state, start)
				}

				continue
			}

			logger.Error("Stage failed", "stage", st.name, "error", err)

			if terr := machine.TransitionStep(stepID, models.StepStatusFailed, nil, err.Error()); terr != nil {
				return c.cancelledResult(machine, state, start)
			}

			c.publish(ctx, workflowID, events.StepFailed{
				BaseEvent: c.baseEvent(events.StepFailedEvent, workflowID, req.UserID),
				StepID:    stepID,
				StepName:  st.name,
				Error:     err.Error(),
			})

			return c.failWorkflow(ctx, machine, state, start, st.name, err)
		}

		if terr := machine.TransitionStep(stepID, models.StepStatusCompleted, output, ""); terr != nil {
			return c.cancelledResult(machine, state, start)
		}

		c.publish(ctx, workflowID, events.StepCompleted{
			BaseEvent: c.baseEvent(events.StepCompletedEvent, workflowID, req.UserID),
			StepID:    stepID,
			StepName:  st.name,
			Duration:  time.Since(stageStart),
		})
	}

	if err := c.registry.Complete(workflowID); err != nil {
		logger.Warn("Failed to retire workflow", "error", err)
	}

	duration := time.Since(start)

	c.publish(ctx, workflowID, events.WorkflowCompleted{
		BaseEvent:   c.baseEvent(events.WorkflowCompletedEvent, workflowID, req.UserID),
		ImageCount:  len(state.images),
		FailedItems: len(state.itemErrors),
		Duration:    duration,
	})

	c.recordOutcome(state, machine)

	logger.Info("Pipeline completed",
		"images", len(state.images),
		"failed_items", len(state.itemErrors),
		"duration", duration)

	return c.buildResult(machine, state, start, "", "")
}

// StatusInfo is the externally visible progress view of one workflow.
type StatusInfo struct {
	WorkflowID  string                `json:"workflow_id"`
	Status      models.WorkflowStatus `json:"status"`
	Progress    float64               `json:"progress"`
	CurrentStep string                `json:"current_step,omitempty"`
}

// Status reports a workflow's progress. The second return is false for
// unknown workflow ids; Status never fails otherwise.
func (c *Coordinator) Status(workflowID string) (*StatusInfo, bool) {
	wf, ok := c.registry.Find(workflowID)
	if !ok {
		return nil, false
	}

	return &StatusInfo{
		WorkflowID:  wf.ID,
		Status:      wf.Status,
		Progress:    wf.Progress,
		CurrentStep: wf.CurrentStep,
	}, true
}

// Cancel requests cooperative cancellation. In-flight collaborator calls
// are not interrupted; the pipeline stops before its next stage.
func (c *Coordinator) Cancel(ctx context.Context, workflowID string) bool {
	wf, found := c.registry.Find(workflowID)
	if !found {
		return false
	}

	if !c.registry.CancelWorkflow(workflowID) {
		return false
	}

	c.publish(ctx, workflowID, events.WorkflowCancelled{
		BaseEvent: c.baseEvent(events.WorkflowCancelledEvent, workflowID, wf.UserID),
	})

	return true
}

func (c *Coordinator) failWorkflow(
	ctx context.Context,
	machine *workflow.Machine,
	state *runState,
	start time.Time,
	stageName string,
	stageErr error,
) *models.WorkflowResult {
	workflowID := machine.ID()

	if err := c.registry.Fail(workflowID, stageErr.Error()); err != nil {
		c.logger.Warn("Failed to retire workflow", "workflow_id", workflowID, "error", err)
	}

	c.publish(ctx, workflowID, events.WorkflowFailed{
		BaseEvent: c.baseEvent(events.WorkflowFailedEvent, workflowID, state.req.UserID),
		Stage:     stageName,
		Error:     stageErr.Error(),
		Duration:  time.Since(start),
	})

	c.recordOutcome(state, machine)

	return c.buildResult(machine, state, start, stageName, stageErr.Error())
}

// cancelledResult finalizes a run that lost a cancellation race. The
// session still gets the outcome so its history reflects cancelled runs.
func (c *Coordinator) cancelledResult(
	machine *workflow.Machine,
	state *runState,
	start time.Time,
) *models.WorkflowResult {
	c.recordOutcome(state, machine)

	return c.buildResult(machine, state, start, "", "")
}

func (c *Coordinator) buildResult(
	machine *workflow.Machine,
	state *runState,
	start time.Time,
	failedStage string,
	errText string,
) *models.WorkflowResult {
	return &models.WorkflowResult{
		WorkflowID:     machine.ID(),
		UserID:         state.req.UserID,
		Status:         machine.Status(),
		OriginalPrompt: state.req.Prompt,
		EnhancedPrompt: state.enhanced,
		Images:         state.images,
		ItemErrors:     state.itemErrors,
		FailedStage:    failedStage,
		Error:          errText,
		Duration:       time.Since(start),
	}
}

// resolveSession finds the caller's session: the one named in the request
// if it is still active, otherwise the user's active session, otherwise a
// fresh one.
func (c *Coordinator) resolveSession(req models.GenerationRequest) string {
	if req.SessionID != "" {
		if _, ok := c.sessions.Get(req.SessionID); ok {
			return req.SessionID
		}
	}

	if sess, ok := c.sessions.GetByUser(req.UserID); ok {
		return sess.ID
	}

	return c.sessions.Create(req.UserID)
}

// Request preferences overlay the session's stored ones.
func (c *Coordinator) mergedPreferences(sessionID string, reqPrefs map[string]any) map[string]any {
	merged := c.sessions.Preferences(sessionID)
	for k, v := range reqPrefs {
		merged[k] = v
	}

	return merged
}

// recordOutcome writes the run back into the session: one conversation
// turn plus the workflow-scoped context blob.
func (c *Coordinator) recordOutcome(state *runState, machine *workflow.Machine) {
	workflowID := machine.ID()
	status := machine.Status()

	response := fmt.Sprintf("Generated %d of %d images", len(state.images), state.req.Count)
	if status != models.WorkflowStatusCompleted {
		response = fmt.Sprintf("Generation %s", status)
	}

	c.sessions.AppendTurn(state.sessionID, state.req.Prompt, response, map[string]any{
		"workflow_id": workflowID,
	})

	c.sessions.SetWorkflowContext(state.sessionID, workflowID, map[string]any{
		"status":          string(status),
		"enhanced_prompt": state.enhanced,
		"images":          len(state.images),
		"failed_items":    len(state.itemErrors),
	})
}

func (c *Coordinator) runStage(ctx context.Context, st stage, state *runState) (output any, err error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "stage."+st.name,
		attribute.String(otelhelper.StageNameKey, st.name))

	defer func() {
		// A panicking collaborator is converted into a stage failure, not
		// an escaped crash.
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", st.name, r)
		}

		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	if st.policy == BatchStage {
		return c.runBatch(ctx, state)
	}

	switch st.name {
	case StageEnhancePrompt:
		enhanced, err := c.agents.Enhancer.Enhance(ctx, state.req.Prompt, state.preferences, state.req.UserID)
		if err != nil {
			return nil, fmt.Errorf("prompt enhancement failed: %w", err)
		}

		state.enhanced = enhanced

		return enhanced, nil

	case StageValidateSafety:
		result, err := c.agents.Guardrail.Validate(ctx, state.enhanced, state.req.UserID)
		if err != nil {
			return nil, fmt.Errorf("safety validation failed: %w", err)
		}

		if !result.Valid {
			return nil, fmt.Errorf("prompt blocked: %s", strings.Join(result.BlockedReasons, "; "))
		}

		return result, nil

	case StageCategorize:
		for _, image := range state.images {
			categorization, err := c.agents.Categorizer.Categorize(ctx, image)
			if err != nil {
				return nil, fmt.Errorf("categorization failed for image %s: %w", image.ID, err)
			}

			image.Category = categorization.Primary
			image.Tags = categorization.Tags
		}

		return map[string]any{"categorized": len(state.images)}, nil

	case StagePersist:
		paths := make([]string, 0, len(state.images))

		for _, image := range state.images {
			path, err := c.agents.Files.Save(ctx, image, image.Category)
			if err != nil {
				return nil, fmt.Errorf("persistence failed for image %s: %w", image.ID, err)
			}

			image.StoragePath = path
			paths = append(paths, path)
		}

		return paths, nil

	case StageUpdateMemory:
		if err := c.agents.Memory.Record(ctx, state.req.UserID, state.req.Prompt, state.enhanced, state.images); err != nil {
			return nil, fmt.Errorf("memory update failed: %w", err)
		}

		return map[string]any{"recorded": true}, nil
	}

	return nil, fmt.Errorf("unknown stage %s", st.name)
}

func (c *Coordinator) baseEvent(eventType events.EventType, workflowID, userID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now(),
		WorkflowID: workflowID,
		UserID:     userID,
	}
}

// publish is best effort; a broken bus never affects the pipeline.
func (c *Coordinator) publish(ctx context.Context, key string, event eventbus.Event) {
	if c.eventBus == nil {
		return
	}

	if err := c.eventBus.Publish(ctx, key, event); err != nil {
		c.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
