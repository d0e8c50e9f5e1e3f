package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ImageSize is the requested output resolution for generated images.
type ImageSize struct {
	Width  int `json:"width"  validate:"required,gt=0"`
	Height int `json:"height" validate:"required,gt=0"`
}

func (s ImageSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseImageSize parses a "WIDTHxHEIGHT" spec such as "1024x1024".
func ParseImageSize(spec string) (ImageSize, error) {
	parts := strings.SplitN(spec, "x", 2)
	if len(parts) != 2 {
		return ImageSize{}, fmt.Errorf("invalid image size %q", spec)
	}

	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return ImageSize{}, fmt.Errorf("invalid image width in %q: %w", spec, err)
	}

	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return ImageSize{}, fmt.Errorf("invalid image height in %q: %w", spec, err)
	}

	if width <= 0 || height <= 0 {
		return ImageSize{}, fmt.Errorf("image size %q must be positive", spec)
	}

	return ImageSize{Width: width, Height: height}, nil
}

// GenerationRequest is one user request entering the pipeline.
type GenerationRequest struct {
	UserID      string         `json:"user_id"    validate:"required"`
	SessionID   string         `json:"session_id"`
	Prompt      string         `json:"prompt"     validate:"required,min=1"`
	Count       int            `json:"count"      validate:"required,gte=1,lte=10"`
	Size        ImageSize      `json:"size"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// GeneratedImage is one artifact produced by the batch generation stage.
type GeneratedImage struct {
	ID          string    `json:"id"`
	Index       int       `json:"index"`
	Prompt      string    `json:"prompt"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Data        []byte    `json:"data,omitempty"`
	Size        ImageSize `json:"size"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	StoragePath string    `json:"storage_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemError records a single failed item within a generation batch.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ValidationResult is the guardrail stage's verdict on an enhanced prompt.
type ValidationResult struct {
	Valid          bool               `json:"valid"`
	Warnings       []string           `json:"warnings,omitempty"`
	BlockedReasons []string           `json:"blocked_reasons,omitempty"`
	SafetyScores   map[string]float64 `json:"safety_scores,omitempty"`
}

// Categorization is the categorizer stage's output for one image.
type Categorization struct {
	Primary   string   `json:"primary"`
	Secondary []string `json:"secondary,omitempty"`
	Styles    []string `json:"styles,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// WorkflowResult is the terminal record returned for every pipeline run,
// whether it completed or failed. Callers never see an error from the
// pipeline itself; failures are carried here.
type WorkflowResult struct {
	WorkflowID     string            `json:"workflow_id"`
	UserID         string            `json:"user_id"`
	Status         WorkflowStatus    `json:"status"`
	OriginalPrompt string            `json:"original_prompt"`
	EnhancedPrompt string            `json:"enhanced_prompt,omitempty"`
	Images         []*GeneratedImage `json:"images"`
	ItemErrors     []ItemError       `json:"item_errors,omitempty"`
	FailedStage    string            `json:"failed_stage,omitempty"`
	Error          string            `json:"error,omitempty"`
	Duration       time.Duration     `json:"duration"`
}
