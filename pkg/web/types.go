// Package web provides HTTP request and response types for the generation API.
package web

import (
	"time"

	"github.com/pixora/pixora/pkg/models"
)

// SubmitGenerationRequest represents the request body for submitting a
// generation pipeline run.
type SubmitGenerationRequest struct {
	UserID      string         `json:"user_id"               validate:"required"`
	SessionID   string         `json:"session_id,omitempty"`
	Prompt      string         `json:"prompt"                validate:"required,min=1"`
	Count       int            `json:"count"                 validate:"omitempty,gte=1,lte=10"`
	Size        string         `json:"size,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// CreateSessionRequest represents the request body for opening a session.
type CreateSessionRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// AppendTurnRequest represents the request body for recording one
// conversation exchange on a session.
type AppendTurnRequest struct {
	UserMessage    string         `json:"user_message"    validate:"required"`
	SystemResponse string         `json:"system_response" validate:"required"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// PatchPreferencesRequest represents the merge patch applied to a
// session's stored preferences.
type PatchPreferencesRequest struct {
	Preferences map[string]any `json:"preferences" validate:"required"`
}

// SessionResponse is the external view of a session. Turn contents stay
// server side; only the count is exposed.
type SessionResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	TurnCount    int       `json:"turn_count"`
	Active       bool      `json:"active"`
}

// TransformSessionResponse converts a session snapshot into its external view.
func TransformSessionResponse(session *models.Session) SessionResponse {
	return SessionResponse{
		ID:           session.ID,
		UserID:       session.UserID,
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
		TurnCount:    len(session.Turns),
		Active:       session.Active,
	}
}

// GenerationImageResponse is the external view of one generated image.
// Raw image bytes are not returned inline; clients fetch them from the
// storage path.
type GenerationImageResponse struct {
	ID          string   `json:"id"`
	Index       int      `json:"index"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
	StoragePath string   `json:"storage_path,omitempty"`
}

// TransformImageResponse converts a generated image into its external view.
func TransformImageResponse(image *models.GeneratedImage) GenerationImageResponse {
	return GenerationImageResponse{
		ID:          image.ID,
		Index:       image.Index,
		Category:    image.Category,
		Tags:        image.Tags,
		StoragePath: image.StoragePath,
	}
}
