// Package guardrail performs safety checks and content moderation on
// enhanced prompts before any generation happens.
package guardrail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pixora/pixora/pkg/models"
)

// Prompts longer than this are rejected outright.
const maxPromptLength = 1000

// Agent scans prompts against keyword deny lists. Keywords in the warn
// list produce warnings only; keywords in the block list make the prompt
// invalid with an explicit blocked reason.
type Agent struct {
	warnKeywords  []string
	blockKeywords []string
	thresholds    map[string]float64
	logger        *slog.Logger
}

func NewAgent(logger *slog.Logger) *Agent {
	return &Agent{
		warnKeywords: []string{
			"weapon", "drug", "alcohol", "shocking", "disturbing",
		},
		blockKeywords: []string{
			"explicit", "nude", "violence", "gore", "hate",
			"discrimination", "illegal", "harmful", "dangerous",
		},
		thresholds: map[string]float64{
			"violence":   0.7,
			"sexual":     0.8,
			"hate":       0.9,
			"harassment": 0.8,
			"self_harm":  0.9,
			"shock":      0.7,
		},
		logger: logger.With("module", "guardrail"),
	}
}

func (a *Agent) Validate(ctx context.Context, enhancedPrompt, userID string) (*models.ValidationResult, error) {
	result := &models.ValidationResult{
		Valid:        true,
		SafetyScores: map[string]float64{},
	}

	if len(enhancedPrompt) > maxPromptLength {
		result.Valid = false
		result.BlockedReasons = append(result.BlockedReasons,
			fmt.Sprintf("prompt exceeds %d characters", maxPromptLength))
	}

	lower := strings.ToLower(enhancedPrompt)

	for _, keyword := range a.warnKeywords {
		if strings.Contains(lower, keyword) {
			result.Warnings = append(result.Warnings, "potentially problematic keyword: "+keyword)
		}
	}

	for _, keyword := range a.blockKeywords {
		if strings.Contains(lower, keyword) {
			result.Valid = false
			result.BlockedReasons = append(result.BlockedReasons, "blocked keyword: "+keyword)
		}
	}

	for category, threshold := range a.thresholds {
		result.SafetyScores[category] = score(lower, category, threshold)
	}

	a.logger.Info("Validated prompt",
		"user_id", userID,
		"valid", result.Valid,
		"warnings", len(result.Warnings),
		"blocked_reasons", len(result.BlockedReasons))

	return result, nil
}

// score is a keyword-presence heuristic, not a model call. A category whose
// name appears in the prompt scores just above its threshold.
func score(prompt, category string, threshold float64) float64 {
	if strings.Contains(prompt, strings.ReplaceAll(category, "_", " ")) {
		return threshold + 0.05
	}

	return 0
}
