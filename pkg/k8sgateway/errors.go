package k8sgateway

import (
	"errors"
	"net"
	"net/url"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// isRetryable implements the cluster-error retryability predicate from
// spec §4.1: retry on transport errors and on {429,500,502,503,504}; never
// retry on other 4xx.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *apierrors.StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.Status().Code
		switch code {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// isAlreadyExists reports whether err is the cluster's "already exists"
// signal — the one non-retryable 4xx that ensureX treats as success.
func isAlreadyExists(err error) bool {
	return apierrors.IsAlreadyExists(err)
}

// isNotFound reports whether err is the cluster's "not found" signal.
func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}
