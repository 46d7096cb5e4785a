package llm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestFallbackClient_PrimarySucceeds(t *testing.T) {
	primary := NewMockClient()
	primary.CompleteFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"ok":true}`, nil
	}
	fallback := NewMockClient()

	client := NewFallbackClient(primary, []Client{fallback}, zap.NewNop())

	got, err := client.Complete(context.Background(), "p", "s", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"ok":true}` {
		t.Errorf("got %q", got)
	}
	if fallback.CompleteCalls != 0 {
		t.Error("fallback should not be called when primary succeeds")
	}
}

func TestFallbackClient_FallsThroughOnRetryable(t *testing.T) {
	primary := NewMockClient()
	primary.CompleteFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "", NewError(ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503"))
	}
	fallback := NewMockClient()
	fallback.CompleteFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"from":"fallback"}`, nil
	}

	client := NewFallbackClient(primary, []Client{fallback}, zap.NewNop())

	got, err := client.Complete(context.Background(), "p", "s", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"from":"fallback"}` {
		t.Errorf("got %q", got)
	}
}

func TestFallbackClient_StopsOnNonRetryable(t *testing.T) {
	primary := NewMockClient()
	primary.CompleteFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "", NewError(ErrorTypeAuth, "authentication failed", false, errors.New("HTTP 401"))
	}
	fallback := NewMockClient()

	client := NewFallbackClient(primary, []Client{fallback}, zap.NewNop())

	_, err := client.Complete(context.Background(), "p", "s", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if fallback.CompleteCalls != 0 {
		t.Error("fallback should not be tried after a non-retryable failure")
	}
}

func TestFallbackClient_AllFail(t *testing.T) {
	transient := func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "", NewError(ErrorTypeEndpoint, "server error", true, errors.New("HTTP 502"))
	}
	primary := NewMockClient()
	primary.CompleteFunc = transient
	fallback := NewMockClient()
	fallback.CompleteFunc = transient

	client := NewFallbackClient(primary, []Client{fallback}, zap.NewNop())

	_, err := client.Complete(context.Background(), "p", "s", 0)
	if !IsRetryable(err) {
		t.Errorf("expected retryable error from exhausted fallbacks, got %v", err)
	}
}
