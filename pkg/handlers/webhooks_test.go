package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

type fakeSubmitter struct {
	events []models.ChangeEvent
	accept bool
}

func (f *fakeSubmitter) Submit(event models.ChangeEvent) bool {
	f.events = append(f.events, event)
	return f.accept
}

func newWebhookServer(t *testing.T, secret string, submitter *fakeSubmitter) *httptest.Server {
	t.Helper()
	handler := NewWebhookHandler(&config.WebhookConfig{SigningSecret: secret}, submitter, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "jira",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestWebhook_QueuesEvent(t *testing.T) {
	submitter := &fakeSubmitter{accept: true}
	server := newWebhookServer(t, "", submitter)

	resp, err := http.Post(server.URL+"/webhooks/jira", "application/json",
		strings.NewReader(`{"document_id": "DATA-42", "fingerprint": "abc123"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, submitter.events, 1)
	assert.Equal(t, models.SourceJira, submitter.events[0].SourceSystem)
	assert.Equal(t, "DATA-42", submitter.events[0].DocumentID)
	assert.Equal(t, "abc123", submitter.events[0].Fingerprint)
}

func TestWebhook_ConfluenceRoute(t *testing.T) {
	submitter := &fakeSubmitter{accept: true}
	server := newWebhookServer(t, "", submitter)

	resp, err := http.Post(server.URL+"/webhooks/confluence", "application/json",
		strings.NewReader(`{"document_id": "98765"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, submitter.events, 1)
	assert.Equal(t, models.SourceConfluence, submitter.events[0].SourceSystem)
}

func TestWebhook_DuplicateStillAcknowledged(t *testing.T) {
	submitter := &fakeSubmitter{accept: false}
	server := newWebhookServer(t, "", submitter)

	resp, err := http.Post(server.URL+"/webhooks/jira", "application/json",
		strings.NewReader(`{"document_id": "DATA-42"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	// At-least-once senders must not retry duplicates.
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestWebhook_RequiresValidToken(t *testing.T) {
	const secret = "shared-secret"
	submitter := &fakeSubmitter{accept: true}
	server := newWebhookServer(t, secret, submitter)

	// Missing token.
	resp, err := http.Post(server.URL+"/webhooks/jira", "application/json",
		strings.NewReader(`{"document_id": "DATA-42"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Token signed with the wrong secret.
	req, err := http.NewRequest(http.MethodPost, server.URL+"/webhooks/jira",
		strings.NewReader(`{"document_id": "DATA-42"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, submitter.events)

	// Correctly signed token.
	req, err = http.NewRequest(http.MethodPost, server.URL+"/webhooks/jira",
		strings.NewReader(`{"document_id": "DATA-42"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, submitter.events, 1)
}

func TestWebhook_RejectsBadPayload(t *testing.T) {
	submitter := &fakeSubmitter{accept: true}
	server := newWebhookServer(t, "", submitter)

	resp, err := http.Post(server.URL+"/webhooks/jira", "application/json",
		strings.NewReader(`{not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(server.URL+"/webhooks/jira", "application/json",
		strings.NewReader(`{"fingerprint": "abc"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, submitter.events)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	submitter := &fakeSubmitter{accept: true}
	server := newWebhookServer(t, "", submitter)

	resp, err := http.Get(server.URL + "/webhooks/jira")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
