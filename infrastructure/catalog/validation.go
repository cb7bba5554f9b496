package catalog

import (
	"fmt"
	"net/url"
	"time"
)

// Bounds for per-request timeouts accepted from configuration.
const (
	MinTimeout = 1 * time.Second
	MaxTimeout = 5 * time.Minute
)

// ValidateBaseURL validates and normalizes a base URL string.
// An empty string is valid and means the provider default is used.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme == "" {
		return "", fmt.Errorf("URL must include a scheme (e.g., http:// or https://)")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, but got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}

	return parsedURL.String(), nil
}

// ValidateTimeout clamps timeout into [MinTimeout, MaxTimeout]. Zero or
// negative values return zero so the caller falls back to its default.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}
