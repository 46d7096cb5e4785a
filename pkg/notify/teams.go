package notify

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// Teams delivers summaries to a Microsoft Teams incoming webhook.
type Teams struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewTeams(webhookURL string, logger *zap.Logger) *Teams {
	return &Teams{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger.Named("teams"),
	}
}

var _ Notifier = (*Teams)(nil)

// teamsMessage is the legacy MessageCard payload, still the simplest
// format incoming webhooks accept.
type teamsMessage struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	ThemeColor string `json:"themeColor,omitempty"`
}

func (t *Teams) NotifyBatch(ctx context.Context, summary *models.BatchSummary) {
	color := "2EB67D"
	if len(summary.Failures) > 0 || len(summary.Conflicts) > 0 {
		color = "E01E5A"
	}

	msg := teamsMessage{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    "Metadata sync batch finished",
		Title:      "Metadata sync",
		Text:       formatSummary(summary),
		ThemeColor: color,
	}
	if err := postJSON(ctx, t.httpClient, t.webhookURL, msg); err != nil {
		t.logger.Warn("Failed to deliver Teams notification", zap.Error(err))
		return
	}
	t.logger.Debug("Delivered batch summary to Teams")
}
