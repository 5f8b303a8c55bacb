package detect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrRateLimited marks a provider quota / 429 response.
	ErrRateLimited = errors.New("detect: rate limited")
	// ErrService marks every other provider failure, timeouts included.
	ErrService = errors.New("detect: service error")
)

// ClassifyError wraps a raw provider error with ErrRateLimited or ErrService.
// Errors already carrying one of them pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrService) {
		return err
	}
	if isRateLimit(err) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", ErrService, err)
}

// StatusError builds a classified error from an HTTP status and body.
func StatusError(provider string, code int, body string) error {
	if len(body) > 300 {
		body = body[:300]
	}
	if code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s %d: %s", ErrRateLimited, provider, code, body)
	}
	return fmt.Errorf("%w: %s %d: %s", ErrService, provider, code, body)
}

func isRateLimit(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "resource_exhausted")
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
