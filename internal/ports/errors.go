package ports

import (
	"errors"
	"fmt"
)

// Common errors raised while talking to supplier catalogs. Provider adapters
// map their own failures onto these so callers can use errors.Is without
// knowing which provider produced the error.
var (
	// ErrQuotaExceeded indicates that a provider's long-window request quota
	// is used up. It is terminal for that provider for the rest of a run.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrRateLimited indicates that the service throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthenticationFailed indicates rejected or malformed credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMissingCredentials indicates a configured provider has no credentials.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrServiceUnavailable indicates a 5xx or otherwise unavailable service.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrConnection indicates a transport level failure such as a reset.
	ErrConnection = errors.New("connection failed")

	// ErrInvalidResponse indicates the service returned a body that could
	// not be decoded.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrBadRequest indicates the provider rejected the request itself.
	ErrBadRequest = errors.New("bad request")

	// ErrProviderUnavailable indicates a provider was skipped locally, for
	// example because its circuit is open.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCacheCorrupted indicates that cached data is corrupted or invalid.
	ErrCacheCorrupted = errors.New("cache corrupted")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LookupError records a failed catalog call together with how many attempts
// were made.
type LookupError struct {
	// Provider is the catalog that failed.
	Provider string

	// PartNumber is the MPN or keyword being looked up.
	PartNumber string

	// Attempts is the number of calls made, including retries.
	Attempts int

	// Err is the last underlying error.
	Err error
}

// Error implements the error interface for LookupError.
func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup error: provider=%s, mpn=%s, attempts=%d, err=%v",
		e.Provider, e.PartNumber, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *LookupError) Unwrap() error { return e.Err }

// IsRetryable returns true if the underlying failure is transient.
func (e *LookupError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout) ||
		errors.Is(e.Err, ErrConnection) ||
		errors.Is(e.Err, ErrInvalidResponse)
}

// NewLookupError creates a new LookupError with the given details.
func NewLookupError(provider, partNumber string, attempts int, err error) *LookupError {
	return &LookupError{
		Provider:   provider,
		PartNumber: partNumber,
		Attempts:   attempts,
		Err:        err,
	}
}

// CacheError represents an error from cache operations.
// It includes the key and operation that failed.
type CacheError struct {
	// Key is the cache key that was involved in the failed operation.
	Key string

	// Operation is the name of the cache operation that failed.
	Operation string

	// Err is the underlying error that caused the cache operation to fail.
	Err error
}

// Error implements the error interface for CacheError.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError creates a new CacheError with the given details.
func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
