// Package protocol defines the contracts between the pipeline coordinator
// and the collaborator agents that perform each stage's actual work.
package protocol

import (
	"context"

	"github.com/pixora/pixora/pkg/models"
)

// PromptEnhancer rewrites a raw user prompt into a richer generation prompt,
// folding in the user's stored preferences.
type PromptEnhancer interface {
	Enhance(ctx context.Context, rawPrompt string, preferences map[string]any, userID string) (string, error)
}

// Guardrail scores an enhanced prompt against safety policy. A returned
// result with Valid=false is an explicit block; an error is a stage failure.
type Guardrail interface {
	Validate(ctx context.Context, enhancedPrompt, userID string) (*models.ValidationResult, error)
}

// ImageGenerator produces a single image. The coordinator fans out one call
// per requested item; items are independent and may run concurrently.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, size models.ImageSize) (*models.GeneratedImage, error)
}

// Categorizer assigns a category and tags to one generated image.
type Categorizer interface {
	Categorize(ctx context.Context, image *models.GeneratedImage) (*models.Categorization, error)
}

// FileStore persists one image under its category and returns the storage path.
type FileStore interface {
	Save(ctx context.Context, image *models.GeneratedImage, category string) (string, error)
}

// Memory records the finished request into the user's long-term memory.
// Memory failures are soft; the pipeline never fails because of them.
type Memory interface {
	Record(ctx context.Context, userID, rawPrompt, enhancedPrompt string, images []*models.GeneratedImage) error
}

// Agents bundles the collaborator set the coordinator drives.
type Agents struct {
	Enhancer    PromptEnhancer
	Guardrail   Guardrail
	Generator   ImageGenerator
	Categorizer Categorizer
	Files       FileStore
	Memory      Memory
}
