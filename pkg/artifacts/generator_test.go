package artifacts

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

func recordWithFact(t *testing.T, entityKey, description string, mutate ...func(*models.SchemaFact)) *models.EntityRecord {
	t.Helper()
	ref, err := models.ParseEntityRef(entityKey)
	require.NoError(t, err)

	fact := models.SchemaFact{
		ID:           uuid.New(),
		Entity:       ref,
		Description:  description,
		Confidence:   0.9,
		SourceSystem: models.SourceJira,
		DocumentID:   "DATA-1",
		ExtractedAt:  time.Now(),
	}
	for _, m := range mutate {
		m(&fact)
	}

	rec := models.NewEntityRecord(ref)
	rec.Current = &fact
	rec.State = models.RecordStateAccepted
	return rec
}

func factlessRecord(t *testing.T, entityKey string) *models.EntityRecord {
	t.Helper()
	ref, err := models.ParseEntityRef(entityKey)
	require.NoError(t, err)
	return models.NewEntityRecord(ref)
}

func salesSnapshot(t *testing.T) []*models.EntityRecord {
	t.Helper()
	return []*models.EntityRecord{
		recordWithFact(t, "ANALYTICS.SALES.ORDERS", "Order header table.", func(f *models.SchemaFact) {
			f.Owner = "data-platform"
		}),
		recordWithFact(t, "ANALYTICS.SALES.ORDERS.ORDER_ID", "Primary key.", func(f *models.SchemaFact) {
			f.DataType = "NUMBER"
			f.PrimaryKey = true
		}),
		recordWithFact(t, "ANALYTICS.SALES.ORDERS.CUSTOMER_ID", "Reference to customer.", func(f *models.SchemaFact) {
			f.DataType = "NUMBER"
			f.ForeignKey = "CUSTOMERS.CUSTOMER_ID"
		}),
		recordWithFact(t, "ANALYTICS.SALES.CUSTOMERS", "Customer dimension."),
	}
}

func findArtifact(t *testing.T, artifacts []models.Artifact, groupKey, name string) string {
	t.Helper()
	for _, a := range artifacts {
		if a.GroupKey == groupKey && a.Name == name {
			return string(a.Content)
		}
	}
	t.Fatalf("artifact %s/%s not found", groupKey, name)
	return ""
}

func TestGenerate_Deterministic(t *testing.T) {
	gen := New("table")
	snapshot := salesSnapshot(t)

	first, err := gen.Generate(snapshot)
	require.NoError(t, err)
	second, err := gen.Generate(snapshot)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].GroupKey, second[i].GroupKey)
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.Equal(t, string(first[i].Content), string(second[i].Content),
			"artifact %s/%s must be byte-identical across runs", first[i].GroupKey, first[i].Name)
	}
}

func TestGenerate_GroupsSorted(t *testing.T) {
	gen := New("table")
	artifacts, err := gen.Generate([]*models.EntityRecord{
		recordWithFact(t, "ANALYTICS.SALES.ORDERS", "Orders."),
		recordWithFact(t, "ANALYTICS.FINANCE.LEDGER", "Ledger."),
	})
	require.NoError(t, err)

	var groups []string
	for _, a := range artifacts {
		if len(groups) == 0 || groups[len(groups)-1] != a.GroupKey {
			groups = append(groups, a.GroupKey)
		}
	}
	assert.Equal(t, []string{"ANALYTICS.FINANCE", "ANALYTICS.SALES"}, groups)
}

func TestGenerate_ModelSQL(t *testing.T) {
	gen := New("view")
	artifacts, err := gen.Generate(salesSnapshot(t))
	require.NoError(t, err)

	sql := findArtifact(t, artifacts, "ANALYTICS.SALES", "stg_order.sql")
	assert.Contains(t, sql, "{{ config(materialized='view') }}")
	assert.Contains(t, sql, "customer_id,")
	assert.Contains(t, sql, "order_id")
	assert.Contains(t, sql, "from {{ source('sales', 'orders') }}")

	// Table with no extracted columns selects star.
	customers := findArtifact(t, artifacts, "ANALYTICS.SALES", "stg_customer.sql")
	assert.Contains(t, customers, "    *\n")
}

func TestGenerate_SchemaYAML(t *testing.T) {
	gen := New("table")
	artifacts, err := gen.Generate(salesSnapshot(t))
	require.NoError(t, err)

	schema := findArtifact(t, artifacts, "ANALYTICS.SALES", "schema.yml")
	assert.Contains(t, schema, "version: 2")
	assert.Contains(t, schema, "name: stg_order")
	assert.Contains(t, schema, "description: Order header table.")
	assert.Contains(t, schema, "data_type: number")
	assert.Contains(t, schema, "- unique")
	assert.Contains(t, schema, "- not_null")

	sources := findArtifact(t, artifacts, "ANALYTICS.SALES", "sources.yml")
	assert.Contains(t, sources, "database: analytics")
	assert.Contains(t, sources, "schema: sales")
	assert.Contains(t, sources, "name: orders")
}

func TestGenerate_MermaidDiagram(t *testing.T) {
	gen := New("table")
	artifacts, err := gen.Generate(salesSnapshot(t))
	require.NoError(t, err)

	diagram := findArtifact(t, artifacts, "ANALYTICS.SALES", "er_diagram.mmd")
	assert.True(t, strings.HasPrefix(diagram, "erDiagram\n"))
	assert.Contains(t, diagram, "ORDERS {")
	assert.Contains(t, diagram, "CUSTOMERS {")
	assert.Contains(t, diagram, "number ORDER_ID PK")
	assert.Contains(t, diagram, "number CUSTOMER_ID FK")
	assert.Contains(t, diagram, "CUSTOMERS ||--o{ ORDERS : references")
}

func TestGenerate_PlaceholderForFactlessEntity(t *testing.T) {
	gen := New("table")
	artifacts, err := gen.Generate([]*models.EntityRecord{
		factlessRecord(t, "ANALYTICS.SALES.RETURNS"),
		recordWithFact(t, "ANALYTICS.SALES.RETURNS.RETURN_ID", "Primary key.", func(f *models.SchemaFact) {
			f.DataType = "NUMBER"
			f.PrimaryKey = true
		}),
	})
	require.NoError(t, err)

	schema := findArtifact(t, artifacts, "ANALYTICS.SALES", "schema.yml")
	assert.Contains(t, schema, "description: No description yet.")

	diagram := findArtifact(t, artifacts, "ANALYTICS.SALES", "er_diagram.mmd")
	assert.Contains(t, diagram, "RETURNS {")
}

func TestGenerate_SummaryListsNeedsReview(t *testing.T) {
	review := recordWithFact(t, "ANALYTICS.SALES.DISCOUNTS", "Maybe discounts.", func(f *models.SchemaFact) {
		f.Confidence = 0.4
	})
	review.NeedsReview = true

	gen := New("table")
	artifacts, err := gen.Generate([]*models.EntityRecord{
		recordWithFact(t, "ANALYTICS.SALES.ORDERS", "Orders."),
		review,
	})
	require.NoError(t, err)

	summary := findArtifact(t, artifacts, "ANALYTICS.SALES", "README.md")
	assert.Contains(t, summary, "# ANALYTICS.SALES")
	assert.Contains(t, summary, "Needs Review")
	assert.Contains(t, summary, "ANALYTICS.SALES.DISCOUNTS")
	assert.Contains(t, summary, "0.40")
}

func TestGenerate_EmptySnapshot(t *testing.T) {
	gen := New("table")
	artifacts, err := gen.Generate(nil)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}
