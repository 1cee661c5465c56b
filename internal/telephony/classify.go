package telephony

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorClass tags a dispatch failure for the retry policy.
type ErrorClass int

const (
	// ClassUnknown means no provider response was observed; the call may or may not exist.
	ClassUnknown ErrorClass = iota
	// ClassRetryable covers transient signalling and capacity failures.
	ClassRetryable
	// ClassTerminal covers failures a retry cannot fix, such as invalid numbers or auth.
	ClassTerminal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

var transientMarkers = []string{"sip", "503", "rate", "capacity", "busy"}

// Classify is the only place provider error text is inspected.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ClassUnknown
	}
	if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == http.StatusServiceUnavailable {
		return ClassRetryable
	}
	msg := strings.ToLower(apiErr.Message)
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return ClassRetryable
		}
	}
	return ClassTerminal
}

// Retryable adapts Classify to the retry combinator.
func Retryable(err error) bool {
	return Classify(err) == ClassRetryable
}
