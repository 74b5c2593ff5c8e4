package provider

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"
)

var transientMarkers = []string{"timeout", "ECONNREFUSED", "connection refused"}

// IsRetryable reports whether a transport error is likely to go away on a
// later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// FromError builds the failed outcome for a transport error.
func FromError(name string, err error) Outcome {
	return Outcome{
		ProviderName: name,
		Error:        err.Error(),
		Retryable:    IsRetryable(err),
	}
}

// retryableStatus reports whether an HTTP status from a provider API should
// be retried.
func retryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}
