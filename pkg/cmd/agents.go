package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pixora/pixora/pkg/agents/categorizer"
	"github.com/pixora/pixora/pkg/agents/filestore"
	"github.com/pixora/pixora/pkg/agents/guardrail"
	"github.com/pixora/pixora/pkg/agents/imagefx"
	"github.com/pixora/pixora/pkg/agents/memory"
	"github.com/pixora/pixora/pkg/agents/promptenhancer"
	"github.com/pixora/pixora/pkg/protocol"
)

// AgentsConfig carries the external endpoints the pipeline collaborators need.
type AgentsConfig struct {
	DataDir        string
	RedisURL       string
	OpenAIAPIKey   string
	OpenAIModel    string
	ImageFXAPIKey  string
	ImageFXBaseURL string
}

// NewAgents builds the full collaborator set for the pipeline. The memory
// agent needs a reachable redis; everything else is local.
func NewAgents(ctx context.Context, logger *slog.Logger, config AgentsConfig) (protocol.Agents, error) {
	generator, err := imagefx.NewAgent(logger, imagefx.Config{
		OpenAIAPIKey:   config.OpenAIAPIKey,
		OpenAIModel:    config.OpenAIModel,
		ImageFXAPIKey:  config.ImageFXAPIKey,
		ImageFXBaseURL: config.ImageFXBaseURL,
	})
	if err != nil {
		return protocol.Agents{}, fmt.Errorf("failed to create image generator: %w", err)
	}

	memoryAgent, err := memory.NewAgent(ctx, config.RedisURL, logger)
	if err != nil {
		return protocol.Agents{}, fmt.Errorf("failed to create memory agent: %w", err)
	}

	return protocol.Agents{
		Enhancer:    promptenhancer.NewEnhancer(logger),
		Guardrail:   guardrail.NewAgent(logger),
		Generator:   generator,
		Categorizer: categorizer.NewAgent(logger),
		Files:       filestore.NewStore(config.DataDir, logger),
		Memory:      memoryAgent,
	}, nil
}
