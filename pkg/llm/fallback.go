package llm

import (
	"context"

	"go.uber.org/zap"
)

// FallbackClient tries a primary provider and falls through to fallbacks
// on retryable failure. Non-retryable errors (auth, malformed request)
// fail immediately without burning the fallback budget.
type FallbackClient struct {
	primary   Client
	fallbacks []Client
	logger    *zap.Logger
}

// NewFallbackClient creates a client that tries primary first, then each
// fallback in order.
func NewFallbackClient(primary Client, fallbacks []Client, logger *zap.Logger) *FallbackClient {
	return &FallbackClient{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger.Named("llm.fallback"),
	}
}

// Complete implements Client.
func (c *FallbackClient) Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	result, err := c.primary.Complete(ctx, prompt, systemMessage, temperature)
	if err == nil {
		return result, nil
	}
	if !IsRetryable(err) {
		return "", err
	}

	lastErr := err
	for _, fb := range c.fallbacks {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.logger.Warn("primary provider failed, trying fallback",
			zap.String("failed_provider", c.primary.Provider()),
			zap.String("fallback_provider", fb.Provider()),
			zap.Error(lastErr))

		result, err = fb.Complete(ctx, prompt, systemMessage, temperature)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return "", err
		}
		lastErr = err
	}

	return "", lastErr
}

// Provider returns the primary provider's name.
func (c *FallbackClient) Provider() string {
	return c.primary.Provider()
}

// Model returns the primary provider's model name.
func (c *FallbackClient) Model() string {
	return c.primary.Model()
}
