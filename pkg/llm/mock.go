package llm

import "context"

// MockClient is a configurable mock for testing extraction without any
// external model. Set the function field to control behavior.
type MockClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns "{}" and nil error.
	CompleteFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// CompleteCalls counts invocations for verification.
	CompleteCalls int
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage, temperature)
	}
	return "{}", nil
}

// Provider implements Client.
func (m *MockClient) Provider() string {
	return "mock"
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Reset clears call tracking.
func (m *MockClient) Reset() {
	m.CompleteCalls = 0
}
