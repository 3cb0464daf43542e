package provider

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codelore/codelore/domain/fault"
)

// classifyHTTPStatus maps a provider HTTP status to a fault kind.
func classifyHTTPStatus(status int) fault.Kind {
	switch {
	case status == 408:
		return fault.KindTimeout
	case status == 429:
		return fault.KindRateLimited
	case status >= 500:
		return fault.KindTransientDependency
	default:
		return fault.KindPermanentDependency
	}
}

// classifyError wraps a provider error with its fault kind so the shared
// retry policy can decide whether to try again. Context errors pass through
// unwrapped; callers must see cancellation as cancellation.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindTimeout, operation, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := classifyHTTPStatus(apiErr.HTTPStatusCode)
		classified := fault.Wrap(kind, operation, err)
		if kind == fault.KindRateLimited {
			if hint := retryAfterFromHeaders(apiErr); hint > 0 {
				classified = classified.WithRetryAfter(hint)
			}
		}
		return classified
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fault.Wrap(fault.KindTimeout, operation, err)
		}
		return fault.Wrap(fault.KindSourceUnavailable, operation, err)
	}

	return fault.Wrap(fault.KindTransientDependency, operation, err)
}

// retryAfterFromHeaders extracts a retry hint from an API error, if the
// provider sent one.
func retryAfterFromHeaders(apiErr *openai.APIError) time.Duration {
	if apiErr.HTTPStatusCode != 429 {
		return 0
	}
	// go-openai does not expose response headers on APIError; some
	// OpenAI-compatible gateways embed the wait in the message instead.
	fields := splitFields(apiErr.Message)
	for i, f := range fields {
		if f == "after" && i+1 < len(fields) {
			if secs, err := strconv.Atoi(trimNonDigits(fields[i+1])); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

func trimNonDigits(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] < '0' || s[start] > '9') {
		start++
	}
	for end > start && (s[end-1] < '0' || s[end-1] > '9') {
		end--
	}
	return s[start:end]
}
