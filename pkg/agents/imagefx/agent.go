// Package imagefx generates images from enhanced prompts, selecting among
// the configured generation providers by priority.
package imagefx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/pixora/pkg/models"
)

const defaultTimeout = 60 * time.Second

// Provider is one image generation backend.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string, size models.ImageSize) ([]byte, error)
}

// Config selects which providers are available. Providers are tried in
// priority order: OpenAI, then ImageFX.
type Config struct {
	OpenAIAPIKey   string
	OpenAIModel    string
	ImageFXAPIKey  string
	ImageFXBaseURL string
	Timeout        time.Duration
}

// Agent produces one image per call. The coordinator fans calls out for
// batch requests; each call is independent.
type Agent struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

func NewAgent(logger *slog.Logger, config Config) (*Agent, error) {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	agent := &Agent{
		timeout: timeout,
		logger:  logger.With("module", "imagefx"),
	}

	if config.OpenAIAPIKey != "" {
		agent.providers = append(agent.providers, newOpenAIProvider(config.OpenAIAPIKey, config.OpenAIModel))
	}

	if config.ImageFXAPIKey != "" {
		agent.providers = append(agent.providers, newImageFXProvider(config.ImageFXAPIKey, config.ImageFXBaseURL))
	}

	if len(agent.providers) == 0 {
		return nil, errors.New("no image generation providers configured")
	}

	names := make([]string, 0, len(agent.providers))
	for _, p := range agent.providers {
		names = append(names, p.Name())
	}

	agent.logger.Info("Image generation providers initialized", "providers", names)

	return agent, nil
}

func (a *Agent) Generate(ctx context.Context, prompt string, size models.ImageSize) (*models.GeneratedImage, error) {
	provider := a.providers[0]

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	data, err := provider.Generate(ctx, prompt, size)
	if err != nil {
		a.logger.Error("Image generation failed", "provider", provider.Name(), "error", err)

		return nil, err
	}

	return &models.GeneratedImage{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Provider:  provider.Name(),
		Model:     provider.Model(),
		Data:      data,
		Size:      size,
		CreatedAt: time.Now(),
	}, nil
}
