// Package catalog provides a unified interface for looking parts up in
// supplier catalogs, with built-in support for rate limiting, circuit
// breaking, caching, metrics and tracing.
//
// Each supplier API is wrapped by a CoreCatalog adapter that translates its
// wire format into domain.CatalogOffer values. Cross-cutting behavior is
// layered on through Middleware so the adapters stay small.
//
// Basic usage:
//
//	limiter := catalog.NewWindowLimiter("mouser", 8, 900)
//	client, err := catalog.NewClient("mouser", catalog.ClientConfig{
//	    Credentials: catalog.Credentials{APIKey: os.Getenv("MOUSER_API_KEY")},
//	    Limiter:     limiter,
//	    Middleware: []catalog.Middleware{
//	        catalog.CircuitBreakerMiddleware(5, 30*time.Second),
//	        catalog.TimeoutMiddleware(45 * time.Second),
//	    },
//	})
//	offers, err := client.Lookup(ctx, query)
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// LookupKind selects between exact part-number and keyword lookups.
type LookupKind int

const (
	KindPartNumber LookupKind = iota
	KindKeyword
)

// String returns the kind name used in metrics and spans.
func (k LookupKind) String() string {
	if k == KindKeyword {
		return "keyword"
	}
	return "part_number"
}

// LookupRequest is the provider-neutral request handed to a CoreCatalog.
type LookupRequest struct {
	Kind LookupKind
	// Term is the part number or keyword.
	Term string
	// Manufacturer is a hint only; filtering happens in Client.
	Manufacturer string
	// Limit caps keyword results. Zero means provider default.
	Limit int
}

// CoreCatalog is the minimal interface a supplier adapter implements.
// Middleware wraps any conforming implementation.
type CoreCatalog interface {
	// DoLookup issues one request and returns normalized offers. An empty
	// result is not an error.
	DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error)

	// ProviderID returns the provider instance identifier.
	ProviderID() string
}

// Credentials holds the opaque secrets a provider needs. Which fields are
// required depends on the provider type.
type Credentials struct {
	APIKey       string
	ClientID     string
	ClientSecret string
}

// ClientConfig holds all configuration options for creating a catalog client.
type ClientConfig struct {
	// ProviderID names this provider instance. Defaults to the provider type.
	ProviderID string

	// Credentials authenticate requests to the supplier API.
	Credentials Credentials

	// BaseURL overrides the default API endpoint for the provider.
	BaseURL string

	// TokenURL overrides the OAuth token endpoint for providers that use one.
	TokenURL string

	// Timeout bounds a single HTTP exchange. Zero uses the provider default.
	Timeout time.Duration

	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client

	// Limiter is the provider's shared request limiter. When set it is
	// applied innermost so every network call passes through it.
	Limiter *WindowLimiter

	// Middleware is applied in the order specified, first outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreCatalog to add cross-cutting functionality.
type Middleware func(CoreCatalog) CoreCatalog

var _ ports.CatalogProvider = (*Client)(nil)

// Client implements ports.CatalogProvider on top of a middleware chain.
type Client struct {
	core CoreCatalog
	id   string
}

// NewClient creates a catalog client for the given provider type.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}
	if config.ProviderID == "" {
		config.ProviderID = providerType
	}

	baseURL, err := ValidateBaseURL(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL for %s: %w", config.ProviderID, err)
	}
	config.BaseURL = baseURL

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", config.ProviderID, err)
	}

	if config.Limiter != nil {
		core = WindowLimitMiddleware(config.Limiter)(core)
	}
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core, id: config.ProviderID}, nil
}

// NewClientFromCore wraps an existing CoreCatalog. It is used for custom
// adapters that are not registered as factories.
func NewClientFromCore(core CoreCatalog, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{core: core, id: core.ProviderID()}
}

// ID returns the provider instance identifier.
func (c *Client) ID() string { return c.id }

// Lookup returns every offer for the query's part number, narrowed to the
// query's manufacturer when one is set.
func (c *Client) Lookup(ctx context.Context, q domain.PartQuery) ([]domain.CatalogOffer, error) {
	mpn := strings.TrimSpace(q.ManufacturerPartNumber)
	if mpn == "" {
		return nil, domain.NewQueryError(mpn, "Lookup", domain.ErrEmptyValue)
	}

	offers, err := c.core.DoLookup(ctx, LookupRequest{
		Kind:         KindPartNumber,
		Term:         mpn,
		Manufacturer: q.Manufacturer,
	})
	if err != nil {
		return nil, err
	}
	return FilterByManufacturer(offers, q.Manufacturer), nil
}

// SearchKeyword returns up to limit offers loosely matching keyword.
func (c *Client) SearchKeyword(ctx context.Context, keyword, manufacturer string, limit int) ([]domain.CatalogOffer, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("keyword cannot be empty")
	}

	offers, err := c.core.DoLookup(ctx, LookupRequest{
		Kind:         KindKeyword,
		Term:         keyword,
		Manufacturer: manufacturer,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}
	offers = FilterByManufacturer(offers, manufacturer)
	if limit > 0 && len(offers) > limit {
		offers = offers[:limit]
	}
	return offers, nil
}

// FilterByManufacturer keeps offers whose manufacturer contains want,
// compared case-insensitively. An empty want keeps everything.
func FilterByManufacturer(offers []domain.CatalogOffer, want string) []domain.CatalogOffer {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(want))
	if needle == "" {
		return offers
	}

	out := make([]domain.CatalogOffer, 0, len(offers))
	for _, o := range offers {
		if strings.Contains(fold.String(o.Manufacturer), needle) {
			out = append(out, o)
		}
	}
	return out
}

// ProviderFactory creates a CoreCatalog implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreCatalog, error)

// Provider factory registry for extensibility.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory allows registration of custom catalog adapters.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// GetProviderFactory returns the factory registered for a provider type.
func GetProviderFactory(providerType string) (ProviderFactory, bool) {
	f, ok := providerFactories[providerType]
	return f, ok
}
