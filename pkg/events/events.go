// Package events defines event types for pipeline lifecycle notifications.
package events

import "time"

type EventType string

// Topic carries all pipeline lifecycle events.
const Topic = "pixora.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowStartedEvent   EventType = "workflow.started"
	WorkflowCompletedEvent EventType = "workflow.completed"
	WorkflowFailedEvent    EventType = "workflow.failed"
	WorkflowCancelledEvent EventType = "workflow.cancelled"

	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
	StepSkippedEvent   EventType = "step.skipped"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	UserID     string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type WorkflowStarted struct {
	BaseEvent

	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt"`
	Count     int    `json:"count"`
}

func (e WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

type WorkflowCompleted struct {
	BaseEvent

	ImageCount  int           `json:"image_count"`
	FailedItems int           `json:"failed_items"`
	Duration    time.Duration `json:"duration"`
}

func (e WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

type WorkflowFailed struct {
	BaseEvent

	Stage    string        `json:"stage"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

type WorkflowCancelled struct {
	BaseEvent
}

func (e WorkflowCancelled) GetType() EventType {
	return WorkflowCancelledEvent
}

type StepStarted struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	StepID   string        `json:"step_id"`
	StepName string        `json:"step_name"`
	Duration time.Duration `json:"duration"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
	Error    string `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type StepSkipped struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
}

func (e StepSkipped) GetType() EventType {
	return StepSkippedEvent
}
