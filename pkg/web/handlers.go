package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/pixora/pixora/pkg/coordinator"
	"github.com/pixora/pixora/pkg/models"
	"github.com/pixora/pixora/pkg/session"
	"github.com/pixora/pixora/pkg/workflow"
)

type APIHandlers struct {
	coordinator *coordinator.Coordinator
	registry    *workflow.Registry
	sessions    *session.Store
	validator   *validator.Validate
}

func NewAPIHandlers(
	coordinator *coordinator.Coordinator,
	registry *workflow.Registry,
	sessions *session.Store,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		coordinator: coordinator,
		registry:    registry,
		sessions:    sessions,
		validator:   validator,
	}
}

// SubmitGeneration runs the full pipeline synchronously and returns its
// terminal result. Pipeline failures are reported in the result body, not
// as HTTP errors.
func (h *APIHandlers) SubmitGeneration(c fiber.Ctx) error {
	var req SubmitGenerationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	var size models.ImageSize

	if req.Size != "" {
		parsed, err := models.ParseImageSize(req.Size)
		if err != nil {
			return badRequest(c, "Invalid size: "+err.Error())
		}

		size = parsed
	}

	result := h.coordinator.Submit(c.Context(), models.GenerationRequest{
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Prompt:      req.Prompt,
		Count:       req.Count,
		Size:        size,
		Preferences: req.Preferences,
	})

	images := make([]GenerationImageResponse, 0, len(result.Images))
	for _, image := range result.Images {
		images = append(images, TransformImageResponse(image))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"workflow_id":     result.WorkflowID,
		"status":          result.Status,
		"original_prompt": result.OriginalPrompt,
		"enhanced_prompt": result.EnhancedPrompt,
		"images":          images,
		"item_errors":     result.ItemErrors,
		"failed_stage":    result.FailedStage,
		"error":           result.Error,
		"duration_ms":     result.Duration.Milliseconds(),
	})
}

func (h *APIHandlers) GetWorkflowStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	status, found := h.coordinator.Status(id)
	if !found {
		return notFound(c, "Workflow not found")
	}

	return c.JSON(status)
}

func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, found := h.coordinator.Status(id); !found {
		return notFound(c, "Workflow not found")
	}

	if !h.coordinator.Cancel(c.Context(), id) {
		return conflict(c, "Workflow already finished")
	}

	return c.JSON(fiber.Map{"cancelled": true})
}

func (h *APIHandlers) GetUserWorkflows(c fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return badRequest(c, "User ID is required")
	}

	workflows := h.registry.ListForUser(userID)

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) CreateSession(c fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sessionID := h.sessions.Create(req.UserID)

	sess, _ := h.sessions.Get(sessionID)

	return c.Status(fiber.StatusCreated).JSON(TransformSessionResponse(sess))
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	sess, found := h.sessions.Get(id)
	if !found {
		return notFound(c, "Session not found")
	}

	return c.JSON(TransformSessionResponse(sess))
}

func (h *APIHandlers) AppendSessionTurn(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	var req AppendTurnRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if !h.sessions.AppendTurn(id, req.UserMessage, req.SystemResponse, req.Metadata) {
		return notFound(c, "Session not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PatchSessionPreferences(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	var req PatchPreferencesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if !h.sessions.SetPreferences(id, req.Preferences) {
		return notFound(c, "Session not found")
	}

	return c.JSON(fiber.Map{"preferences": h.sessions.Preferences(id)})
}

func (h *APIHandlers) GetSessionSummary(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	if _, found := h.sessions.Get(id); !found {
		return notFound(c, "Session not found")
	}

	return c.JSON(fiber.Map{
		"summary": h.sessions.SummarizeRecent(id, 5),
	})
}

func (h *APIHandlers) CloseSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	if !h.sessions.Close(id) {
		return notFound(c, "Session not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	stats := h.sessions.Stats()

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":  "healthy",
		"message": "Pixora API is healthy",
		"checkers": fiber.Map{
			"workflows": fiber.Map{
				"active":  h.registry.ActiveCount(),
				"history": h.registry.HistoryCount(),
			},
			"sessions": fiber.Map{
				"active": stats.ActiveSessions,
				"total":  stats.TotalSessions,
				"turns":  stats.TotalTurns,
			},
		},
		"timestamp": time.Now().UTC(),
	})
}
