package catalog

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-bomcheck/internal/ports"
)

// Default circuit breaker settings: five consecutive transient failures
// open the circuit for thirty seconds.
const (
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// CircuitBreakerConfig configures the per-provider circuit breaker. A zero
// MaxFailures uses the defaults; a negative one disables the breaker.
type CircuitBreakerConfig struct {
	MaxFailures int           `yaml:"max_failures" validate:"gte=-1,lte=100"`
	Cooldown    time.Duration `yaml:"cooldown" validate:"gte=0"`
}

// ProviderConfig describes one provider instance. The order of providers in
// RegistryConfig is their priority order.
type ProviderConfig struct {
	// Name uniquely identifies the instance in results and logs.
	Name string `yaml:"name" validate:"required,min=1,max=64"`
	// Type selects the registered factory, for example "mouser" or "nexar".
	Type string `yaml:"type" validate:"required,providertype"`
	// CredentialEnv lists the environment variables holding credentials.
	// One entry is read as an API key; two as a client id and secret.
	CredentialEnv []string `yaml:"credential_env" validate:"max=2,dive,required"`
	// BaseURL and TokenURL override the provider endpoints.
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	TokenURL string `yaml:"token_url" validate:"omitempty,url"`
	// MaxPerSecond and MaxPerHour are the provider's published ceilings.
	// Zero uses the provider type's default.
	MaxPerSecond int `yaml:"max_per_second" validate:"gte=0"`
	MaxPerHour   int `yaml:"max_per_hour" validate:"gte=0"`
	// MinInterval spaces consecutive calls. Zero disables pacing.
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
	// Timeout bounds a single request.
	Timeout        time.Duration        `yaml:"timeout" validate:"gte=0"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// providerLimits holds the published ceilings for each known provider type.
var providerLimits = map[string]struct{ perSecond, perHour int }{
	"mouser": {MouserMaxPerSecond, MouserMaxPerHour},
	"nexar":  {2, 0},
}

// RegistryConfig holds everything needed to build the provider clients.
type RegistryConfig struct {
	Providers []ProviderConfig

	// Cache, when set, serves repeated lookups for CacheTTL.
	Cache       ports.CacheStore
	CacheTTL    time.Duration
	CachePrefix string

	// Metrics receives request metrics from every provider.
	Metrics ports.MetricsCollector
	// BreakerMetrics returns a circuit breaker observer for a provider.
	BreakerMetrics func(provider string) CircuitBreakerMetrics

	// ServiceName names the tracer. Defaults to "bomcheck".
	ServiceName string

	// Getenv resolves credential variables. Defaults to os.Getenv.
	Getenv func(string) string
	// HTTPClient is shared by every adapter when set.
	HTTPClient *http.Client
	// LimiterOptions are passed to every WindowLimiter.
	LimiterOptions []LimiterOption
}

// Registry owns the provider clients and their shared limiters. Providers
// are built eagerly so credential problems surface at construction.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	clients  map[string]*Client
	limiters map[string]*WindowLimiter
}

// NewRegistry builds one client per configured provider.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if len(config.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}
	getenv := config.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = "bomcheck"
	}

	r := &Registry{
		clients:  make(map[string]*Client, len(config.Providers)),
		limiters: make(map[string]*WindowLimiter, len(config.Providers)),
	}

	for _, pc := range config.Providers {
		if _, dup := r.clients[pc.Name]; dup {
			return nil, fmt.Errorf("duplicate provider name %q", pc.Name)
		}
		if _, ok := GetProviderFactory(pc.Type); !ok {
			return nil, fmt.Errorf("provider %q: unknown type %q", pc.Name, pc.Type)
		}

		creds, err := resolveCredentials(pc, getenv)
		if err != nil {
			return nil, err
		}

		perSecond, perHour := pc.MaxPerSecond, pc.MaxPerHour
		if limits, ok := providerLimits[pc.Type]; ok {
			if perSecond == 0 {
				perSecond = limits.perSecond
			}
			if perHour == 0 {
				perHour = limits.perHour
			}
		}
		limiter := NewWindowLimiter(pc.Name, perSecond, perHour, config.LimiterOptions...)

		client, err := NewClient(pc.Type, ClientConfig{
			ProviderID:  pc.Name,
			Credentials: creds,
			BaseURL:     pc.BaseURL,
			TokenURL:    pc.TokenURL,
			Timeout:     ValidateTimeout(pc.Timeout),
			HTTPClient:  config.HTTPClient,
			Limiter:     limiter,
			Middleware:  r.middleware(pc, config, serviceName),
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}

		r.order = append(r.order, pc.Name)
		r.clients[pc.Name] = client
		r.limiters[pc.Name] = limiter
	}

	return r, nil
}

// middleware assembles the chain for one provider, outermost first.
func (r *Registry) middleware(pc ProviderConfig, config RegistryConfig, serviceName string) []Middleware {
	chain := []Middleware{TracingMiddleware(serviceName)}
	if config.Metrics != nil {
		chain = append(chain, MetricsMiddleware(config.Metrics))
	}
	if config.Cache != nil {
		chain = append(chain, CacheMiddleware(config.Cache, config.CacheTTL, config.CachePrefix))
	}

	if pc.CircuitBreaker.MaxFailures >= 0 {
		failures, cooldown := pc.CircuitBreaker.MaxFailures, pc.CircuitBreaker.Cooldown
		if failures == 0 {
			failures = DefaultBreakerFailures
		}
		if cooldown == 0 {
			cooldown = DefaultBreakerCooldown
		}
		var observer CircuitBreakerMetrics
		if config.BreakerMetrics != nil {
			observer = config.BreakerMetrics(pc.Name)
		}
		chain = append(chain, CircuitBreakerMiddlewareWithMetrics(failures, cooldown, observer))
	}

	if pc.MinInterval > 0 {
		chain = append(chain, RateLimitMiddleware(rate.Every(pc.MinInterval), 1))
	}
	if timeout := ValidateTimeout(pc.Timeout); timeout > 0 {
		chain = append(chain, TimeoutMiddleware(timeout))
	}
	return chain
}

func resolveCredentials(pc ProviderConfig, getenv func(string) string) (Credentials, error) {
	values := make([]string, len(pc.CredentialEnv))
	var missing []string
	for i, name := range pc.CredentialEnv {
		values[i] = strings.TrimSpace(getenv(name))
		if values[i] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("provider %q: %s not set: %w",
			pc.Name, strings.Join(missing, ", "), ports.ErrMissingCredentials)
	}

	switch len(values) {
	case 1:
		return Credentials{APIKey: values[0]}, nil
	case 2:
		return Credentials{ClientID: values[0], ClientSecret: values[1]}, nil
	default:
		return Credentials{}, nil
	}
}

// Providers returns the clients in priority order.
func (r *Registry) Providers() []ports.CatalogProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ports.CatalogProvider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.clients[name])
	}
	return out
}

// Client returns the client registered under name.
func (r *Registry) Client(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Limiter returns the shared limiter for a provider.
func (r *Registry) Limiter(name string) (*WindowLimiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[name]
	return l, ok
}

// MinMaxPerSecond returns the smallest positive per-second ceiling across
// providers, or zero when none is bounded.
func (r *Registry) MinMaxPerSecond() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	smallest := 0
	for _, l := range r.limiters {
		if n := l.MaxPerSecond(); n > 0 && (smallest == 0 || n < smallest) {
			smallest = n
		}
	}
	return smallest
}
