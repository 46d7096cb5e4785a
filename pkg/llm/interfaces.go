// Package llm provides text-completion clients for schema extraction.
package llm

import "context"

// Client is the injected text-completion capability. The extractor depends
// only on this interface so tests can use canned responses without any
// external model.
type Client interface {
	// Complete generates a completion for prompt under systemMessage.
	Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// Provider returns the provider name for logging ("openai", "anthropic").
	Provider() string

	// Model returns the configured model name.
	Model() string
}

// Ensure the concrete clients implement Client at compile time.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*FallbackClient)(nil)
	_ Client = (*MockClient)(nil)
)
