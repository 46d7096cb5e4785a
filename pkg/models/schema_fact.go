package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/snowlink-io/snowlink-engine/pkg/jsonutil"
)

// SchemaFact is the structured extraction result for one warehouse entity
// mentioned in a document. Facts are immutable once produced; a later fact
// for the same entity supersedes rather than edits.
type SchemaFact struct {
	ID           uuid.UUID `json:"id"`
	Entity       EntityRef `json:"entity"`
	Description  string    `json:"description"`
	Owner        string    `json:"owner,omitempty"`
	Confidence   float64   `json:"confidence"`
	SourceSystem string    `json:"source_system"`
	DocumentID   string    `json:"document_id"`
	Fingerprint  string    `json:"fingerprint"`
	ExtractedAt  time.Time `json:"extracted_at"`

	// Column-level metadata, populated for column facts only. Carried so
	// artifact generation can render types and key markers.
	DataType   string `json:"data_type,omitempty"`
	PII        bool   `json:"pii,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	ForeignKey string `json:"foreign_key,omitempty"`
}

// ExtractedSchema is the wire shape the extractor expects back from the
// model before it is flattened into per-entity SchemaFacts.
type ExtractedSchema struct {
	Tables     []ExtractedTable `json:"tables"`
	Confidence float64          `json:"extraction_confidence"`
}

// UnmarshalJSON tolerates a quoted confidence value; models sometimes emit
// "0.85" where a number was asked for.
func (s *ExtractedSchema) UnmarshalJSON(data []byte) error {
	var aux struct {
		Tables     []ExtractedTable `json:"tables"`
		Confidence json.RawMessage  `json:"extraction_confidence"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Tables = aux.Tables
	s.Confidence = jsonutil.FlexibleFloatValue(aux.Confidence)
	return nil
}

// ExtractedTable describes one table mentioned in a document.
type ExtractedTable struct {
	TableName   string            `json:"table_name"`
	SchemaName  string            `json:"schema_name,omitempty"`
	Description string            `json:"description"`
	Owner       string            `json:"owner,omitempty"`
	Columns     []ExtractedColumn `json:"columns,omitempty"`
	ForeignKeys []string          `json:"relationships,omitempty"`
}

// UnmarshalJSON tolerates non-string owner values; team identifiers come
// back as bare numbers often enough to matter.
func (t *ExtractedTable) UnmarshalJSON(data []byte) error {
	type plain ExtractedTable
	var aux struct {
		plain
		Owner json.RawMessage `json:"owner,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = ExtractedTable(aux.plain)
	t.Owner = jsonutil.FlexibleStringValue(aux.Owner)
	return nil
}

// ExtractedColumn describes one column of an extracted table.
type ExtractedColumn struct {
	ColumnName  string `json:"column_name"`
	DataType    string `json:"data_type,omitempty"`
	Description string `json:"description"`
	PII         bool   `json:"pii,omitempty"`
	PrimaryKey  bool   `json:"primary_key,omitempty"`
	ForeignKey  string `json:"foreign_key,omitempty"`
}
