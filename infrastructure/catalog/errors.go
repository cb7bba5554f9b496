package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/ahrav/go-bomcheck/internal/ports"
)

// ErrorType represents the category of an error returned by a catalog provider.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an error of an undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication indicates rejected or malformed credentials.
	ErrorTypeAuthentication
	// ErrorTypeQuota indicates the provider's long-window quota is used up.
	ErrorTypeQuota
	// ErrorTypeRateLimit indicates short-term throttling.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest indicates a malformed request or invalid parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the endpoint or resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a problem on the provider's end.
	ErrorTypeServerError
	// ErrorTypeMalformedResponse indicates a body that could not be decoded.
	ErrorTypeMalformedResponse
	// ErrorTypeNetwork indicates a client-side network problem.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates that the request timed out.
	ErrorTypeTimeout
)

// ProviderError is a structured error from a catalog provider. Its type maps
// onto the ports sentinels, so errors.Is(err, ports.ErrQuotaExceeded) holds
// for a quota error from any provider.
type ProviderError struct {
	// Type classifies the error into a standard category.
	Type ErrorType
	// Provider identifies the provider that produced the error.
	Provider string
	// StatusCode holds the HTTP status code, if applicable.
	StatusCode int
	// Message contains the provider's error message.
	Message string
	// RetryAfter is the server-suggested wait, zero when absent.
	RetryAfter time.Duration
	// WrappedError holds the original underlying error.
	WrappedError error
}

// Error returns a string representation of the ProviderError.
func (e *ProviderError) Error() string {
	base := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}

	if typeStr := e.typeString(); typeStr != "" {
		base += fmt.Sprintf(" [%s]", typeStr)
	}

	if e.Message != "" {
		base += ": " + e.Message
	}

	if e.WrappedError != nil {
		base += fmt.Sprintf(": %v", e.WrappedError)
	}

	return base
}

// Unwrap returns the underlying wrapped error.
func (e *ProviderError) Unwrap() error {
	return e.WrappedError
}

// Is matches the ports sentinel that corresponds to the error type.
func (e *ProviderError) Is(target error) bool {
	s := e.sentinel()
	return s != nil && target == s
}

func (e *ProviderError) sentinel() error {
	switch e.Type {
	case ErrorTypeAuthentication:
		return ports.ErrAuthenticationFailed
	case ErrorTypeQuota:
		return ports.ErrQuotaExceeded
	case ErrorTypeRateLimit:
		return ports.ErrRateLimited
	case ErrorTypeBadRequest:
		return ports.ErrBadRequest
	case ErrorTypeServerError:
		return ports.ErrServiceUnavailable
	case ErrorTypeMalformedResponse:
		return ports.ErrInvalidResponse
	case ErrorTypeNetwork:
		return ports.ErrConnection
	case ErrorTypeTimeout:
		return ports.ErrTimeout
	default:
		return nil
	}
}

// IsRetryable reports whether a request that failed with this error may be
// retried.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeMalformedResponse:
		return true
	default:
		return false
	}
}

func (e *ProviderError) typeString() string {
	switch e.Type {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeQuota:
		return "quota"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeMalformedResponse:
		return "malformed_response"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return ""
	}
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// ErrorClassifier turns provider-specific failures into ProviderError values.
type ErrorClassifier struct {
	// Provider is the provider name attached to produced errors.
	Provider string
}

// ClassifyHTTPError classifies an error response by status code, refining
// 403 and 429 bodies that mention a quota into ErrorTypeQuota.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	var errType ErrorType

	switch statusCode {
	case 401:
		errType = ErrorTypeAuthentication
	case 403:
		errType = ErrorTypeAuthentication
		if mentionsQuota(message) {
			errType = ErrorTypeQuota
		}
	case 429:
		errType = ErrorTypeRateLimit
		if mentionsQuota(message) {
			errType = ErrorTypeQuota
		}
	case 408:
		errType = ErrorTypeTimeout
	case 400, 422:
		errType = ErrorTypeBadRequest
	case 404:
		errType = ErrorTypeNotFound
	case 500, 502, 503, 504:
		errType = ErrorTypeServerError
	default:
		switch {
		case statusCode >= 400 && statusCode < 500:
			errType = ErrorTypeBadRequest
		case statusCode >= 500:
			errType = ErrorTypeServerError
		default:
			errType = ErrorTypeUnknown
		}
	}

	if message == "" {
		message = fmt.Sprintf("%s request failed", ec.Provider)
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyMessage classifies an error reported inside a successful HTTP
// response body, such as an API error list or GraphQL errors.
func (ec *ErrorClassifier) ClassifyMessage(message string) *ProviderError {
	lower := strings.ToLower(message)

	var errType ErrorType
	switch {
	case mentionsQuota(lower):
		errType = ErrorTypeQuota
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		errType = ErrorTypeRateLimit
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication"):
		errType = ErrorTypeAuthentication
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		errType = ErrorTypeTimeout
	case strings.Contains(lower, "internal") || strings.Contains(lower, "unavailable"):
		errType = ErrorTypeServerError
	default:
		errType = ErrorTypeBadRequest
	}

	return NewProviderError(ec.Provider, errType, 0, message, nil)
}

// ClassifyTransportError classifies an error returned by the HTTP client
// before any response was read.
func (ec *ErrorClassifier) ClassifyTransportError(err error) *ProviderError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request canceled", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "request timed out", err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF), errors.As(err, &netErr):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "connection failed", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "transport error", err)
	}
}

// ClassifyDecodeError wraps a response decoding failure.
func (ec *ErrorClassifier) ClassifyDecodeError(err error) *ProviderError {
	return NewProviderError(ec.Provider, ErrorTypeMalformedResponse, 0, "could not decode response", err)
}

func mentionsQuota(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{"quota", "exceeded your part limit", "upgrade your plan", "daily limit", "hourly limit", "monthly limit"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
