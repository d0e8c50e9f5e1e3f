// Package filestore persists generated images and their metadata on the
// local file system, organized by category.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixora/pixora/pkg/models"
)

// Store writes each image under root/<category>/<id>.png with a JSON
// metadata sidecar next to it.
type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(root string, logger *slog.Logger) *Store {
	return &Store{
		root:   strings.Replace(root, "file://", "", 1),
		logger: logger.With("module", "filestore"),
	}
}

func (s *Store) Save(ctx context.Context, image *models.GeneratedImage, category string) (string, error) {
	if category == "" {
		category = "uncategorized"
	}

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create category directory %s: %w", dir, err)
	}

	imagePath := filepath.Join(dir, image.ID+".png")
	if err := os.WriteFile(imagePath, image.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image %s: %w", imagePath, err)
	}

	if err := s.writeMetadata(dir, image); err != nil {
		return "", err
	}

	s.logger.Info("Saved image", "image_id", image.ID, "category", category, "path", imagePath)

	return imagePath, nil
}

// Metadata sidecars carry everything except the image bytes themselves.
func (s *Store) writeMetadata(dir string, image *models.GeneratedImage) error {
	meta := *image
	meta.Data = nil

	payload, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for image %s: %w", image.ID, err)
	}

	metaPath := filepath.Join(dir, image.ID+".json")
	if err := os.WriteFile(metaPath, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", metaPath, err)
	}

	return nil
}
