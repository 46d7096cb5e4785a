package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSchemaExtractionPrompt(t *testing.T) {
	prompt := BuildSchemaExtractionPrompt("jira", "DATA-42", "ORDERS has an ORDER_ID column.")

	assert.True(t, strings.HasPrefix(prompt, "Source: jira (DATA-42)"))
	assert.Contains(t, prompt, "Text to analyze:")
	assert.Contains(t, prompt, "ORDERS has an ORDER_ID column.")
}

func TestSchemaExtractionSystem_ResponseContract(t *testing.T) {
	// The system message must spell out the exact JSON keys the parser expects.
	for _, key := range []string{"table_name", "schema_name", "columns", "column_name", "data_type", "pii", "primary_key", "foreign_key", "relationships", "extraction_confidence"} {
		assert.Contains(t, SchemaExtractionSystem, key)
	}
}
