package sources

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
)

// DefaultRetryAfter is used when a 429 response carries no Retry-After header.
const DefaultRetryAfter = 30 * time.Second

// StatusError maps non-2xx upstream responses to the pipeline error taxonomy.
// 404 and 410 become ErrNotFound, 429 becomes a RateLimitedError carrying the
// Retry-After hint, everything else is an opaque error.
func StatusError(system string, resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%s document: %w", system, apperrors.ErrNotFound)
	case http.StatusTooManyRequests:
		return &apperrors.RateLimitedError{
			System:     system,
			RetryAfter: retryAfter(resp),
		}
	default:
		return fmt.Errorf("%s returned status %d: %s", system, resp.StatusCode, truncateBody(body))
	}
}

func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	// HTTP-date form
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return DefaultRetryAfter
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
