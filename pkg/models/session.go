package models

import "time"

// ConversationTurn is one user/system exchange within a session. Turns are
// immutable once appended.
type ConversationTurn struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	UserMessage    string         `json:"user_message"`
	SystemResponse string         `json:"system_response"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Session holds the conversational and preference context for one user,
// spanning multiple workflows. A session belongs to exactly one user and
// at most one active session exists per user.
type Session struct {
	ID              string                    `json:"id"`
	UserID          string                    `json:"user_id" validate:"required"`
	CreatedAt       time.Time                 `json:"created_at"`
	LastActivity    time.Time                 `json:"last_activity"`
	Turns           []ConversationTurn        `json:"turns"`
	Preferences     map[string]any            `json:"preferences"`
	WorkflowContext map[string]map[string]any `json:"workflow_context"`
	Active          bool                      `json:"active"`
}
