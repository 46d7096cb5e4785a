package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/repositories"
)

type fakeAuditRepo struct {
	events []*models.AuditEvent
}

func (f *fakeAuditRepo) Record(_ context.Context, event *models.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditRepo) ListForEntity(_ context.Context, entityKey string, limit int) ([]*models.AuditEvent, error) {
	var matched []*models.AuditEvent
	for _, e := range f.events {
		if e.EntityKey == entityKey {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type dashboardFixture struct {
	records   *repositories.MemoryEntityRecordRepository
	batches   *repositories.MemoryBatchRepository
	audits    *fakeAuditRepo
	mutations *repositories.MemoryMutationRepository
	server    *httptest.Server
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()
	f := &dashboardFixture{
		records:   repositories.NewMemoryEntityRecordRepository(),
		batches:   repositories.NewMemoryBatchRepository(),
		audits:    &fakeAuditRepo{},
		mutations: repositories.NewMemoryMutationRepository(),
	}
	handler := NewDashboardHandler(f.records, f.batches, f.audits, f.mutations, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestDashboard_ListBatches(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.batches.Save(ctx, &models.BatchSummary{
			ID:                 uuid.New(),
			DocumentsProcessed: i + 1,
			StartedAt:          time.Now().Add(time.Duration(i) * time.Minute),
			FinishedAt:         time.Now().Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	var body struct {
		Batches []*models.BatchSummary `json:"batches"`
	}
	status := getJSON(t, f.server.URL+"/api/batches", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Batches, 3)
	// Newest first.
	assert.Equal(t, 3, body.Batches[0].DocumentsProcessed)

	status = getJSON(t, f.server.URL+"/api/batches?limit=1", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body.Batches, 1)
}

func TestDashboard_ListNeedsReview(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()

	require.NoError(t, f.records.Save(ctx, &models.EntityRecord{
		Entity: models.EntityRef{Database: "ANALYTICS", Schema: "SALES", Table: "ORDERS"},
		State:  models.RecordStateAccepted,
	}))
	require.NoError(t, f.records.Save(ctx, &models.EntityRecord{
		Entity:      models.EntityRef{Database: "ANALYTICS", Schema: "SALES", Table: "REFUNDS"},
		State:       models.RecordStateAccepted,
		NeedsReview: true,
	}))

	var body struct {
		Records []*models.EntityRecord `json:"records"`
	}
	status := getJSON(t, f.server.URL+"/api/review", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "REFUNDS", body.Records[0].Entity.Table)
}

func TestDashboard_EntityAudit(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()

	entityKey := "ANALYTICS.SALES.ORDERS"
	require.NoError(t, f.audits.Record(ctx, &models.AuditEvent{
		ID:        uuid.New(),
		EventType: models.AuditFactAccepted,
		EntityKey: entityKey,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, f.audits.Record(ctx, &models.AuditEvent{
		ID:        uuid.New(),
		EventType: models.AuditFactAccepted,
		EntityKey: "ANALYTICS.SALES.REFUNDS",
		CreatedAt: time.Now(),
	}))

	var body struct {
		Events []*models.AuditEvent `json:"events"`
	}
	status := getJSON(t, f.server.URL+"/api/entities/"+entityKey+"/audit", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Events, 1)
	assert.Equal(t, entityKey, body.Events[0].EntityKey)
}

func TestDashboard_EntityMutations(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()

	orders := models.EntityRef{Database: "ANALYTICS", Schema: "SALES", Table: "ORDERS"}
	refunds := models.EntityRef{Database: "ANALYTICS", Schema: "SALES", Table: "REFUNDS"}
	require.NoError(t, f.mutations.Create(ctx,
		models.NewTargetMutation(orders, nil, "Order header table.", uuid.New(), models.SourceJira)))
	require.NoError(t, f.mutations.Create(ctx,
		models.NewTargetMutation(refunds, nil, "Refund lines.", uuid.New(), models.SourceConfluence)))

	var body struct {
		Mutations []*models.TargetMutation `json:"mutations"`
	}
	status := getJSON(t, f.server.URL+"/api/entities/ANALYTICS.SALES.ORDERS/mutations", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Mutations, 1)
	assert.Equal(t, orders, body.Mutations[0].Entity)
	assert.Equal(t, models.SourceJira, body.Mutations[0].SourceSystem)
}

func TestDashboard_EntityMutationsBadRef(t *testing.T) {
	f := newDashboardFixture(t)

	var body map[string]any
	status := getJSON(t, f.server.URL+"/api/entities/not-an-entity/mutations", &body)
	assert.Equal(t, http.StatusBadRequest, status)
}
