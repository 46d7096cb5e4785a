// Package extractor turns document snapshots into structured schema facts
// using a text-completion model.
package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/llm"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/prompts"
	"github.com/snowlink-io/snowlink-engine/pkg/retry"
)

// Extractor produces schema facts from a document snapshot. Extraction is
// idempotent per fingerprint: the same content yields the cached result
// without a second model call.
type Extractor interface {
	Extract(ctx context.Context, doc *models.Document) ([]models.SchemaFact, error)
}

type extractor struct {
	client llm.Client
	cache  Cache
	// database and schema qualify extracted tables that carry no explicit
	// schema; documents rarely spell out the full warehouse path.
	database    string
	schema      string
	temperature float64
	retryCfg    *retry.Config
	logger      *zap.Logger
}

// New creates an Extractor. database and schema are the warehouse defaults
// used to qualify unqualified table names.
func New(client llm.Client, cache Cache, database, schema string, temperature float64, logger *zap.Logger) Extractor {
	return &extractor{
		client:      client,
		cache:       cache,
		database:    database,
		schema:      schema,
		temperature: temperature,
		retryCfg:    retry.DefaultConfig(),
		logger:      logger.Named("extractor"),
	}
}

var _ Extractor = (*extractor)(nil)

func (e *extractor) Extract(ctx context.Context, doc *models.Document) ([]models.SchemaFact, error) {
	if facts, ok := e.cache.Get(ctx, doc.Fingerprint); ok {
		e.logger.Debug("Extraction cache hit",
			zap.String("source", doc.SourceSystem),
			zap.String("document_id", doc.DocumentID),
			zap.String("fingerprint", doc.Fingerprint))
		return facts, nil
	}

	content := TruncateContent(CleanContent(doc.Content))
	prompt := prompts.BuildSchemaExtractionPrompt(doc.SourceSystem, doc.DocumentID, content)

	var raw string
	err := retry.DoIfRetryable(ctx, e.retryCfg, func() error {
		completion, err := e.client.Complete(ctx, prompt, prompts.SchemaExtractionSystem, e.temperature)
		if err != nil {
			e.logger.Warn("Completion attempt failed",
				zap.String("document_id", doc.DocumentID),
				zap.Error(err))
			return err
		}
		raw = completion
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v",
			apperrors.ErrExtractionUnavailable, doc.SourceSystem, doc.DocumentID, err)
	}

	schema, err := llm.ParseJSONResponse[models.ExtractedSchema](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v",
			apperrors.ErrExtractionMalformed, doc.SourceSystem, doc.DocumentID, err)
	}

	facts, err := e.factsFromSchema(doc, &schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v",
			apperrors.ErrExtractionMalformed, doc.SourceSystem, doc.DocumentID, err)
	}

	e.cache.Set(ctx, doc.Fingerprint, facts)
	e.logger.Info("Extracted schema facts",
		zap.String("source", doc.SourceSystem),
		zap.String("document_id", doc.DocumentID),
		zap.Int("facts", len(facts)),
		zap.Float64("confidence", schema.Confidence))
	return facts, nil
}

// factsFromSchema flattens the model response into per-entity facts.
// Identifier violations are malformed output, never corrected or guessed.
func (e *extractor) factsFromSchema(doc *models.Document, schema *models.ExtractedSchema) ([]models.SchemaFact, error) {
	confidence := schema.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	now := time.Now().UTC()
	var facts []models.SchemaFact

	for _, table := range schema.Tables {
		schemaName := table.SchemaName
		if schemaName == "" {
			schemaName = e.schema
		}

		tableRef := models.EntityRef{
			Database: strings.ToUpper(e.database),
			Schema:   strings.ToUpper(schemaName),
			Table:    strings.ToUpper(table.TableName),
		}
		if err := tableRef.Validate(); err != nil {
			return nil, err
		}

		if table.Description != "" {
			facts = append(facts, models.SchemaFact{
				ID:           uuid.New(),
				Entity:       tableRef,
				Description:  table.Description,
				Owner:        table.Owner,
				Confidence:   confidence,
				SourceSystem: doc.SourceSystem,
				DocumentID:   doc.DocumentID,
				Fingerprint:  doc.Fingerprint,
				ExtractedAt:  now,
			})
		}

		for _, column := range table.Columns {
			columnRef := tableRef
			columnRef.Column = strings.ToUpper(column.ColumnName)
			if err := columnRef.Validate(); err != nil {
				return nil, err
			}
			if column.Description == "" {
				continue
			}
			facts = append(facts, models.SchemaFact{
				ID:           uuid.New(),
				Entity:       columnRef,
				Description:  column.Description,
				Owner:        table.Owner,
				Confidence:   confidence,
				SourceSystem: doc.SourceSystem,
				DocumentID:   doc.DocumentID,
				Fingerprint:  doc.Fingerprint,
				ExtractedAt:  now,
				DataType:     column.DataType,
				PII:          column.PII,
				PrimaryKey:   column.PrimaryKey,
				ForeignKey:   column.ForeignKey,
			})
		}
	}
	return facts, nil
}
