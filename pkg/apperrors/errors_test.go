package apperrors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRateLimitedError_Unwrap(t *testing.T) {
	err := &RateLimitedError{System: "jira", RetryAfter: 30 * time.Second}

	if !errors.Is(err, ErrRateLimited) {
		t.Error("RateLimitedError should match ErrRateLimited via errors.Is")
	}

	wrapped := fmt.Errorf("fetch PROJ-123: %w", err)
	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("wrapped RateLimitedError should still match ErrRateLimited")
	}

	var rle *RateLimitedError
	if !errors.As(wrapped, &rle) {
		t.Fatal("errors.As should recover *RateLimitedError")
	}
	if rle.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", rle.RetryAfter)
	}
}

func TestRateLimitedError_Message(t *testing.T) {
	withHint := &RateLimitedError{System: "confluence", RetryAfter: time.Minute}
	if got := withHint.Error(); got != "confluence rate limited, retry after 1m0s" {
		t.Errorf("Error() = %q", got)
	}

	noHint := &RateLimitedError{System: "confluence"}
	if got := noHint.Error(); got != "confluence rate limited" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &RateLimitedError{System: "jira"}, true},
		{"extraction unavailable", ErrExtractionUnavailable, true},
		{"apply conflict", ErrApplyConflict, true},
		{"wrapped apply conflict", fmt.Errorf("apply: %w", ErrApplyConflict), true},
		{"extraction malformed", ErrExtractionMalformed, false},
		{"apply rejected", ErrApplyRejected, false},
		{"not found", ErrNotFound, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
