// Package categorizer assigns content categories, styles and tags to
// generated images based on their prompts.
package categorizer

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/pixora/pixora/pkg/models"
)

const maxTags = 10

// FallbackCategory is used when no subject keywords match.
const FallbackCategory = "other"

var subjectKeywords = map[string][]string{
	"portrait":     {"portrait", "face", "person", "woman", "man", "child", "model"},
	"landscape":    {"landscape", "mountain", "forest", "ocean", "sunset", "valley", "horizon"},
	"architecture": {"building", "architecture", "city", "bridge", "tower", "interior"},
	"animal":       {"animal", "cat", "dog", "bird", "horse", "wildlife", "fish"},
	"food":         {"food", "dish", "meal", "dessert", "fruit", "drink"},
	"vehicle":      {"car", "vehicle", "motorcycle", "airplane", "ship", "train"},
	"abstract":     {"abstract", "pattern", "geometric", "fractal", "gradient"},
	"product":      {"product", "bottle", "package", "gadget", "device"},
}

var stylePatterns = map[string][]string{
	"photography":  {"photo", "photograph", "camera", "lens", "aperture"},
	"painting":     {"oil painting", "watercolor", "acrylic", "canvas", "brush"},
	"digital_art":  {"digital art", "digital painting", "concept art"},
	"illustration": {"illustration", "drawing", "sketch", "line art"},
	"3d":           {"3d", "three dimensional", "rendered", "blender"},
	"minimalist":   {"minimal", "simple", "clean", "sparse", "minimalist"},
}

type Agent struct {
	logger *slog.Logger
}

func NewAgent(logger *slog.Logger) *Agent {
	return &Agent{
		logger: logger.With("module", "categorizer"),
	}
}

func (a *Agent) Categorize(ctx context.Context, image *models.GeneratedImage) (*models.Categorization, error) {
	prompt := strings.ToLower(image.Prompt)

	result := &models.Categorization{
		Primary: FallbackCategory,
	}

	matches := map[string]int{}

	for category, keywords := range subjectKeywords {
		for _, keyword := range keywords {
			if strings.Contains(prompt, keyword) {
				matches[category]++
			}
		}
	}

	if len(matches) > 0 {
		categories := make([]string, 0, len(matches))
		for category := range matches {
			categories = append(categories, category)
		}

		// Most keyword hits wins; ties break alphabetically for determinism.
		sort.Slice(categories, func(i, j int) bool {
			if matches[categories[i]] != matches[categories[j]] {
				return matches[categories[i]] > matches[categories[j]]
			}

			return categories[i] < categories[j]
		})

		result.Primary = categories[0]
		result.Secondary = categories[1:]
	}

	for style, patterns := range stylePatterns {
		for _, pattern := range patterns {
			if strings.Contains(prompt, pattern) {
				result.Styles = append(result.Styles, style)

				break
			}
		}
	}

	sort.Strings(result.Styles)

	result.Tags = buildTags(prompt, result.Primary, result.Styles)

	a.logger.Debug("Categorized image",
		"image_id", image.ID,
		"primary", result.Primary,
		"styles", result.Styles,
		"tags", len(result.Tags))

	return result, nil
}

func buildTags(prompt, primary string, styles []string) []string {
	seen := map[string]bool{}
	tags := make([]string, 0, maxTags)

	add := func(tag string) {
		if tag == "" || seen[tag] || len(tags) >= maxTags {
			return
		}

		seen[tag] = true
		tags = append(tags, tag)
	}

	add(primary)

	for _, style := range styles {
		add(style)
	}

	for _, word := range strings.FieldsFunc(prompt, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.'
	}) {
		if len(word) > 4 {
			add(word)
		}
	}

	return tags
}
