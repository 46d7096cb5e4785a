// Package notify delivers batch summaries to chat channels. Delivery is
// best effort: failures are logged and never fail the pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// DefaultTimeout bounds one webhook delivery.
const DefaultTimeout = 10 * time.Second

// Notifier delivers a batch summary to a channel.
type Notifier interface {
	NotifyBatch(ctx context.Context, summary *models.BatchSummary)
}

// New builds the configured notifier set. Returns a no-op notifier when
// no channel is configured.
func New(cfg *config.NotifyConfig, logger *zap.Logger) Notifier {
	var notifiers []Notifier
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, NewSlack(cfg.SlackWebhookURL, cfg.SlackChannel, logger))
	}
	if cfg.TeamsWebhookURL != "" {
		notifiers = append(notifiers, NewTeams(cfg.TeamsWebhookURL, logger))
	}
	return Multi(notifiers)
}

// Multi fans a summary out to every configured channel.
type Multi []Notifier

func (m Multi) NotifyBatch(ctx context.Context, summary *models.BatchSummary) {
	for _, n := range m {
		n.NotifyBatch(ctx, summary)
	}
}

var _ Notifier = Multi(nil)

// postJSON delivers one webhook payload, shared by both senders.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// formatSummary renders the shared message text.
func formatSummary(s *models.BatchSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Metadata sync finished: %d documents processed, %d skipped, %d entities updated.",
		s.DocumentsProcessed, s.DocumentsSkipped, s.EntitiesUpdated)

	if len(s.Conflicts) > 0 {
		fmt.Fprintf(&b, "\n%d conflicts resolved by source precedence:", len(s.Conflicts))
		for _, c := range s.Conflicts {
			fmt.Fprintf(&b, "\n  - %s: %s overruled %s", c.Entity, c.WinningSource, c.LosingSource)
		}
	}
	if len(s.NeedsAttention) > 0 {
		fmt.Fprintf(&b, "\n%d entities held for review: %s",
			len(s.NeedsAttention), strings.Join(s.NeedsAttention, ", "))
	}
	if len(s.Failures) > 0 {
		fmt.Fprintf(&b, "\n%d document failures:", len(s.Failures))
		for _, f := range s.Failures {
			state := "needs attention"
			if f.Requeued {
				state = "will retry"
			}
			fmt.Fprintf(&b, "\n  - %s %s: %s (%s)", f.SourceSystem, f.DocumentID, f.Reason, state)
		}
	}
	return b.String()
}
