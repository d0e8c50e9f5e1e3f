package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/pixora/pixora/pkg/cmd"
	"github.com/pixora/pixora/pkg/coordinator"
	"github.com/pixora/pixora/pkg/log"
	"github.com/pixora/pixora/pkg/otelhelper"
	"github.com/pixora/pixora/pkg/session"
	"github.com/pixora/pixora/pkg/workflow"
)

const defaultPort = 9090

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "pixora-api",
		Usage:                 "Run the image generation pipeline API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis connection URL for the user memory agent",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory for generated image storage",
				Value:   "./data",
				Sources: cli.EnvVars("DATA_DIR"),
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "OpenAI API key for image generation",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "openai-model",
				Usage:   "OpenAI image model",
				Sources: cli.EnvVars("OPENAI_MODEL"),
			},
			&cli.StringFlag{
				Name:    "imagefx-api-key",
				Usage:   "ImageFX API key for image generation",
				Sources: cli.EnvVars("IMAGEFX_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "imagefx-base-url",
				Usage:   "ImageFX API base URL",
				Sources: cli.EnvVars("IMAGEFX_BASE_URL"),
			},
			&cli.IntFlag{
				Name:    "generation-concurrency",
				Usage:   "Concurrent image generations per batch",
				Value:   coordinator.DefaultBatchConcurrency,
				Sources: cli.EnvVars("GENERATION_CONCURRENCY"),
			},
			&cli.DurationFlag{
				Name:    "session-timeout",
				Usage:   "Idle time before a session is expired",
				Value:   30 * time.Minute,
				Sources: cli.EnvVars("SESSION_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for session and history cleanup",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "history-max-age",
				Usage:   "Retention for finished workflows",
				Value:   24 * time.Hour,
				Sources: cli.EnvVars("HISTORY_MAX_AGE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Pixora API")

			var tracer trace.Tracer

			if command.Bool("tracing") {
				t, err := otelhelper.NewTracer(ctx, "pixora-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				tracer = t
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			agents, err := cmd.NewAgents(ctx, logger, cmd.AgentsConfig{
				DataDir:        command.String("data-dir"),
				RedisURL:       command.String("redis-url"),
				OpenAIAPIKey:   command.String("openai-api-key"),
				OpenAIModel:    command.String("openai-model"),
				ImageFXAPIKey:  command.String("imagefx-api-key"),
				ImageFXBaseURL: command.String("imagefx-base-url"),
			})
			if err != nil {
				return err
			}

			registry := workflow.NewRegistry(logger)
			sessions := session.NewStore(logger)

			coord := coordinator.New(logger, registry, sessions, agents, eventBus, tracer, coordinator.Config{
				BatchConcurrency: command.Int("generation-concurrency"),
			})

			sweeper := session.NewSweeper(logger, sessions,
				command.Duration("session-timeout"), command.String("sweep-schedule"))

			historyMaxAge := command.Duration("history-max-age")
			sweeper.OnSweep("workflow-history", func() int {
				return registry.EvictHistoryOlderThan(historyMaxAge)
			})

			if err := sweeper.Start(); err != nil {
				return fmt.Errorf("failed to start sweeper: %w", err)
			}

			defer sweeper.Stop()

			api := NewAPI(logger, coord, registry, sessions)

			if err := api.Start(command.Int("port")); err != nil {
				slog.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
