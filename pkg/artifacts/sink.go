package artifacts

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// Sink persists generated artifacts.
type Sink interface {
	Write(artifacts []models.Artifact) error
}

// FileSink writes artifacts under outputDir/<group_key>/<name>. Each file
// is written to a temp path and renamed so readers never observe partial
// content.
type FileSink struct {
	outputDir string
	logger    *zap.Logger
}

func NewFileSink(outputDir string, logger *zap.Logger) *FileSink {
	return &FileSink{
		outputDir: outputDir,
		logger:    logger.Named("artifact_sink"),
	}
}

var _ Sink = (*FileSink)(nil)

func (s *FileSink) Write(artifacts []models.Artifact) error {
	for _, a := range artifacts {
		dir := filepath.Join(s.outputDir, a.GroupKey)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact dir %s: %w", dir, err)
		}

		path := filepath.Join(dir, a.Name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, a.Content, 0o644); err != nil {
			return fmt.Errorf("failed to write artifact %s: %w", path, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("failed to finalize artifact %s: %w", path, err)
		}
	}

	s.logger.Debug("Wrote artifacts", zap.Int("count", len(artifacts)))
	return nil
}
