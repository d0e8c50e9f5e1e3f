// Package promptenhancer enriches raw user prompts with style, quality and
// lighting detail before generation.
package promptenhancer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

const DefaultStyle = "photorealistic"

type styleTemplate struct {
	lighting string
	quality  string
	camera   string
}

var styleTemplates = map[string]styleTemplate{
	"photorealistic": {
		lighting: "professional studio lighting",
		quality:  "8K resolution, highly detailed",
		camera:   "professional photography",
	},
	"cinematic": {
		lighting: "dramatic cinematic lighting",
		quality:  "film quality, cinematic composition",
		camera:   "cinematic camera angles",
	},
	"artistic": {
		lighting: "artistic lighting",
		quality:  "artistic interpretation",
		camera:   "creative composition",
	},
	"minimalist": {
		lighting: "clean, minimal lighting",
		quality:  "minimalist design",
		camera:   "simple composition",
	},
}

// Enhancer rewrites prompts using style templates and stored user
// preferences. Preference keys it honors: "style" (template selection),
// "subject_detail" and "avoid" (appended verbatim).
type Enhancer struct {
	logger *slog.Logger
}

func NewEnhancer(logger *slog.Logger) *Enhancer {
	return &Enhancer{
		logger: logger.With("module", "prompt_enhancer"),
	}
}

func (e *Enhancer) Enhance(ctx context.Context, rawPrompt string, preferences map[string]any, userID string) (string, error) {
	rawPrompt = strings.TrimSpace(rawPrompt)
	if rawPrompt == "" {
		return "", errors.New("prompt is empty")
	}

	style := DefaultStyle
	if s, ok := preferences["style"].(string); ok {
		if _, known := styleTemplates[strings.ToLower(s)]; known {
			style = strings.ToLower(s)
		}
	}

	template := styleTemplates[style]

	parts := []string{rawPrompt, template.lighting, template.quality, template.camera}

	if detail, ok := preferences["subject_detail"].(string); ok && detail != "" {
		parts = append(parts, detail)
	}

	if avoid, ok := preferences["avoid"].(string); ok && avoid != "" {
		parts = append(parts, "avoid "+avoid)
	}

	enhanced := strings.Join(parts, ", ")

	e.logger.Debug("Enhanced prompt",
		"user_id", userID,
		"style", style,
		"raw_length", len(rawPrompt),
		"enhanced_length", len(enhanced))

	return enhanced, nil
}
