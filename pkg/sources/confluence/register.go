package confluence

import (
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/sources"
)

func init() {
	sources.Register(sources.Registration{
		Type: models.SourceConfluence,
		Enabled: func(cfg *config.Config) bool {
			return cfg.Confluence.Enabled && cfg.Confluence.BaseURL != ""
		},
		Factory: func(cfg *config.Config, logger *zap.Logger) (sources.Source, error) {
			return New(cfg.Confluence, logger), nil
		},
	})
}
