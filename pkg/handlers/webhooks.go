package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// EventSubmitter queues a change event for processing. Implemented by the
// sync driver.
type EventSubmitter interface {
	Submit(event models.ChangeEvent) bool
}

// webhookPayload is the minimal change notification body both source
// systems are configured to send.
type webhookPayload struct {
	DocumentID  string `json:"document_id"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// WebhookHandler accepts change notifications from the source systems.
// Handlers parse, verify, and enqueue; all processing decisions belong to
// the pipeline.
type WebhookHandler struct {
	cfg       *config.WebhookConfig
	submitter EventSubmitter
	logger    *zap.Logger
}

// NewWebhookHandler creates a webhook ingress handler.
func NewWebhookHandler(cfg *config.WebhookConfig, submitter EventSubmitter, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:       cfg,
		submitter: submitter,
		logger:    logger.Named("webhooks"),
	}
}

// RegisterRoutes registers the webhook routes on the given mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/jira", h.handleFor(models.SourceJira))
	mux.HandleFunc("/webhooks/confluence", h.handleFor(models.SourceConfluence))
}

func (h *WebhookHandler) handleFor(sourceSystem string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
			return
		}

		if err := h.verifyToken(r); err != nil {
			h.logger.Warn("Rejected webhook delivery",
				zap.String("source_system", sourceSystem),
				zap.Error(err))
			_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "invalid webhook token")
			return
		}

		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_payload", "request body is not valid JSON")
			return
		}
		if payload.DocumentID == "" {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_payload", "document_id is required")
			return
		}

		queued := h.submitter.Submit(models.ChangeEvent{
			SourceSystem: sourceSystem,
			DocumentID:   payload.DocumentID,
			Fingerprint:  payload.Fingerprint,
		})

		h.logger.Debug("Webhook delivery received",
			zap.String("source_system", sourceSystem),
			zap.String("document_id", payload.DocumentID),
			zap.Bool("queued", queued))

		// Duplicates are acknowledged too; the sender already delivered.
		_ = WriteJSON(w, http.StatusAccepted, map[string]any{
			"queued": queued,
		})
	}
}

// verifyToken checks the JWT bearer token against the shared signing
// secret. An empty secret disables verification for local development.
func (h *WebhookHandler) verifyToken(r *http.Request) error {
	if h.cfg.SigningSecret == "" {
		return nil
	}

	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return fmt.Errorf("missing bearer token")
	}

	_, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(h.cfg.SigningSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}
	return nil
}
