// Package memory keeps per-user long-term memory in redis: recent prompt
// history and aggregate usage stats. Memory is an enhancement, not a
// correctness requirement; callers treat failures as soft.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/pixora/pixora/pkg/models"
)

const (
	promptHistoryLimit = 100
	recordTTL          = 30 * 24 * time.Hour
)

// Record is one remembered generation request.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	RawPrompt      string    `json:"raw_prompt"`
	EnhancedPrompt string    `json:"enhanced_prompt"`
	ImageIDs       []string  `json:"image_ids"`
	Categories     []string  `json:"categories"`
}

type Agent struct {
	client *redis.Client
	logger *slog.Logger
}

// NewAgent connects to redis using a redis:// URL and verifies the
// connection with a ping.
func NewAgent(ctx context.Context, redisURL string, logger *slog.Logger) (*Agent, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Agent{
		client: client,
		logger: logger.With("module", "memory"),
	}, nil
}

func historyKey(userID string) string {
	return "pixora:memory:" + userID + ":prompts"
}

func statsKey(userID string) string {
	return "pixora:memory:" + userID + ":stats"
}

func (a *Agent) Record(ctx context.Context, userID, rawPrompt, enhancedPrompt string, images []*models.GeneratedImage) error {
	record := Record{
		Timestamp:      time.Now(),
		RawPrompt:      rawPrompt,
		EnhancedPrompt: enhancedPrompt,
	}

	for _, image := range images {
		record.ImageIDs = append(record.ImageIDs, image.ID)

		if image.Category != "" {
			record.Categories = append(record.Categories, image.Category)
		}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal memory record: %w", err)
	}

	pipe := a.client.TxPipeline()
	key := historyKey(userID)
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, promptHistoryLimit-1)
	pipe.Expire(ctx, key, recordTTL)
	pipe.HIncrBy(ctx, statsKey(userID), "requests", 1)
	pipe.HIncrBy(ctx, statsKey(userID), "images", int64(len(images)))
	pipe.Expire(ctx, statsKey(userID), recordTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store memory record: %w", err)
	}

	a.logger.Debug("Recorded memory", "user_id", userID, "images", len(images))

	return nil
}

// Recent returns up to limit remembered requests for the user, newest first.
func (a *Agent) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	entries, err := a.client.LRange(ctx, historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load memory records: %w", err)
	}

	records := make([]Record, 0, len(entries))

	for _, entry := range entries {
		var record Record
		if err := json.Unmarshal([]byte(entry), &record); err != nil {
			continue
		}

		records = append(records, record)
	}

	return records, nil
}

// Stats returns the user's aggregate counters.
func (a *Agent) Stats(ctx context.Context, userID string) (map[string]string, error) {
	return a.client.HGetAll(ctx, statsKey(userID)).Result()
}

func (a *Agent) HealthCheck(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *Agent) Close() error {
	return a.client.Close()
}
