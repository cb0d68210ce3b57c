// Package serviceerr classifies arbitrary failures into a fixed taxonomy of
// service-attributed errors. Classification is deterministic and never
// panics; anything unrecognized falls through to UNKNOWN_ERROR.
package serviceerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type (
	// Kind is the error taxonomy.
	Kind string

	// ServiceError is a categorized failure attributed to a named service.
	// It is what ends up inside error markers and structured rejections.
	ServiceError struct {
		// Kind categorizes the failure.
		Kind Kind
		// Service names the service the failure is attributed to.
		Service string
		// Message is the human-readable description.
		Message string
		// StatusCode is the HTTP-like status associated with the failure.
		StatusCode int
		// Details optionally carries the underlying error text.
		Details string
	}
)

const (
	// KindAPIKey marks missing or invalid credentials.
	KindAPIKey Kind = "API_KEY_ERROR"
	// KindQuotaExceeded marks rate or quota exhaustion.
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	// KindSafety marks content-policy refusals.
	KindSafety Kind = "SAFETY_ERROR"
	// KindModel marks unknown or unavailable models.
	KindModel Kind = "MODEL_ERROR"
	// KindNetwork marks connection-level failures.
	KindNetwork Kind = "NETWORK_ERROR"
	// KindTimeout marks deadline expirations.
	KindTimeout Kind = "TIMEOUT_ERROR"
	// KindValidation marks pre-stream request validation failures.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindUnknown marks everything else.
	KindUnknown Kind = "UNKNOWN_ERROR"
)

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// NewValidation builds the structured rejection returned when a request fails
// validation before any stream byte is written.
func NewValidation(service, msg string) *ServiceError {
	return &ServiceError{
		Kind:       KindValidation,
		Service:    service,
		Message:    msg,
		StatusCode: 400,
	}
}

type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

func (e *statusError) StatusCode() int { return e.status }

// WithStatus attaches an HTTP status code to err so Classify can recover it.
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &statusError{err: err, status: status}
}

// Classify maps err to a ServiceError. defaultService is the attribution used
// for transport-level failures; modelService, when non-empty, marks err as
// coming from the generation service and enables the model-specific
// categories. Classify never returns nil.
func Classify(err error, defaultService, modelService string) *ServiceError {
	if err == nil {
		return &ServiceError{
			Kind:       KindUnknown,
			Service:    defaultService,
			Message:    "An unexpected error occurred",
			StatusCode: 500,
		}
	}
	msg := strings.ToLower(err.Error())
	status := statusOf(err)

	if modelService != "" {
		switch {
		case strings.Contains(msg, "api key") || strings.Contains(msg, "api_key") ||
			strings.Contains(msg, "unauthorized") || status == 401:
			return &ServiceError{
				Kind:       KindAPIKey,
				Service:    modelService,
				Message:    "Invalid or missing API key",
				StatusCode: 401,
				Details:    err.Error(),
			}
		case strings.Contains(msg, "quota") || strings.Contains(msg, "limit") ||
			strings.Contains(msg, "429") || status == 429:
			return &ServiceError{
				Kind:       KindQuotaExceeded,
				Service:    modelService,
				Message:    "API quota exceeded",
				StatusCode: 429,
				Details:    err.Error(),
			}
		case strings.Contains(msg, "safety") || strings.Contains(msg, "content policy") ||
			strings.Contains(msg, "blocked"):
			return &ServiceError{
				Kind:       KindSafety,
				Service:    modelService,
				Message:    "Content violates safety guidelines",
				StatusCode: 400,
				Details:    err.Error(),
			}
		case strings.Contains(msg, "model") || strings.Contains(msg, "not found"):
			return &ServiceError{
				Kind:       KindModel,
				Service:    modelService,
				Message:    "Model not found or unavailable",
				StatusCode: statusOr(status, 404),
				Details:    err.Error(),
			}
		default:
			return &ServiceError{
				Kind:       KindUnknown,
				Service:    modelService,
				Message:    "Service error occurred",
				StatusCode: statusOr(status, 500),
				Details:    err.Error(),
			}
		}
	}

	switch {
	case strings.Contains(msg, "network") || strings.Contains(msg, "econnrefused") ||
		strings.Contains(msg, "connection refused"):
		return &ServiceError{
			Kind:       KindNetwork,
			Service:    defaultService,
			Message:    "Network connection failed",
			StatusCode: 503,
			Details:    err.Error(),
		}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		errors.Is(err, context.DeadlineExceeded):
		return &ServiceError{
			Kind:       KindTimeout,
			Service:    defaultService,
			Message:    "Request timeout",
			StatusCode: 408,
			Details:    err.Error(),
		}
	default:
		return &ServiceError{
			Kind:       KindUnknown,
			Service:    defaultService,
			Message:    "An unexpected error occurred",
			StatusCode: statusOr(status, 500),
			Details:    err.Error(),
		}
	}
}

func statusOf(err error) int {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if sc, ok := e.(interface{ StatusCode() int }); ok {
			return sc.StatusCode()
		}
	}
	return 0
}

func statusOr(status, fallback int) int {
	if status > 0 {
		return status
	}
	return fallback
}
