package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// BaseProvider holds what every HTTP-backed adapter needs.
type BaseProvider struct {
	id         string
	httpClient *http.Client
	classifier ErrorClassifier
}

func newBaseProvider(config ClientConfig, defaultTimeout time.Duration) BaseProvider {
	hc := config.HTTPClient
	if hc == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return BaseProvider{
		id:         config.ProviderID,
		httpClient: hc,
		classifier: ErrorClassifier{Provider: config.ProviderID},
	}
}

// ProviderID returns the provider instance identifier.
func (b *BaseProvider) ProviderID() string { return b.id }

// postJSON sends payload and returns the body of a 2xx response. Non-2xx
// responses become ProviderErrors with the Retry-After hint attached.
func (b *BaseProvider) postJSON(
	ctx context.Context,
	client *http.Client,
	endpoint string,
	payload any,
	headers map[string]string,
) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", b.id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", b.id, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = b.httpClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, b.classifier.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, b.classifier.ClassifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := b.classifier.ClassifyHTTPError(resp.StatusCode, summarizeBody(data), nil)
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, pe
	}
	return data, nil
}

func summarizeBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

var priceCleaner = regexp.MustCompile(`[^0-9.,]`)

// ParsePrice converts a supplier price string such as "$1,234.50" or
// "0,52 €" into a decimal. A lone comma is read as a decimal separator.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := priceCleaner.ReplaceAllString(raw, "")
	switch {
	case s == "":
		return decimal.Zero, fmt.Errorf("no digits in price %q", raw)
	case strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}

var leadingNumber = regexp.MustCompile(`^\D*?([\d,]+)`)

// parseCount extracts the first integer in s, ignoring thousands separators.
func parseCount(s string) (int, bool) {
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseLeadTime converts "84 Days" or "6 Weeks" into days. Unknown formats
// yield zero.
func ParseLeadTime(s string) int {
	n, ok := parseCount(s)
	if !ok {
		return 0
	}
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "week"):
		return n * 7
	case strings.Contains(lower, "month"):
		return n * 30
	default:
		return n
	}
}

// ParseAvailabilityText reads free-form stock text such as "1,234 In Stock"
// or "On Order".
func ParseAvailabilityText(s string) domain.Availability {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case lower == "":
		return domain.StatusOnly(domain.StockUnknown)
	case strings.Contains(lower, "in stock"):
		if n, ok := parseCount(lower); ok {
			return domain.UnitsInStock(n)
		}
		return domain.StatusOnly(domain.InStock)
	case strings.Contains(lower, "on order"), strings.Contains(lower, "non-stock"),
		strings.Contains(lower, "out of stock"), strings.Contains(lower, "none"):
		return domain.StatusOnly(domain.OutOfStock)
	case strings.Contains(lower, "limited"), strings.Contains(lower, "low"):
		return domain.StatusOnly(domain.LowStock)
	default:
		return domain.StatusOnly(domain.StockUnknown)
	}
}
