package notify

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// Slack delivers summaries to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSlack(webhookURL, channel string, logger *zap.Logger) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		channel:    channel,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger.Named("slack"),
	}
}

var _ Notifier = (*Slack)(nil)

type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (s *Slack) NotifyBatch(ctx context.Context, summary *models.BatchSummary) {
	msg := slackMessage{
		Channel: s.channel,
		Text:    formatSummary(summary),
	}
	if err := postJSON(ctx, s.httpClient, s.webhookURL, msg); err != nil {
		s.logger.Warn("Failed to deliver Slack notification", zap.Error(err))
		return
	}
	s.logger.Debug("Delivered batch summary to Slack",
		zap.String("channel", s.channel))
}
