package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-bomcheck/infrastructure/catalog"
	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// Config is the complete description of a validation run and serves as the
// primary configuration entry point for the bomcheck command.
type Config struct {
	// Providers are the catalogs to query, in priority order.
	Providers []catalog.ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	// Retry configures the backoff applied to each provider attempt.
	Retry RetryConfig `yaml:"retry"`
	// MergeAllProviders collects offers from every reachable provider before
	// ranking instead of stopping at the first provider with a match.
	MergeAllProviders bool `yaml:"merge_all_providers"`
	// Concurrency bounds the number of components validated at once. Zero
	// derives the bound from the slowest provider's per-second ceiling.
	Concurrency int `yaml:"concurrency" validate:"gte=0,lte=64"`
	// SupplierPreferences is the tier table and scoring knobs.
	SupplierPreferences domain.SupplierPreferences `yaml:"supplier_preferences"`
	// Thresholds grades price changes against the BOM price.
	Thresholds domain.ChangeThresholds `yaml:"thresholds"`
	// Suggestions configures the keyword fallback for unmatched parts.
	Suggestions SuggestionConfig `yaml:"suggestions"`
	// Cache configures the optional lookup cache.
	Cache CacheConfig `yaml:"cache"`
	// PriorityComponents lists MPNs validated first and escalated on
	// price changes.
	PriorityComponents []string `yaml:"priority_components" validate:"dive,required"`
	// Consolidation configures the single-supplier analysis.
	Consolidation ConsolidationConfig `yaml:"consolidation"`
}

// RetryConfig specifies the retry strategy for a single provider attempt.
type RetryConfig struct {
	// Ceiling is the number of retries after the first call.
	Ceiling int `yaml:"ceiling" validate:"gte=0,lte=10"`
	// BaseDelay is the delay before the first retry, before jitter.
	BaseDelay time.Duration `yaml:"base_delay" validate:"gt=0"`
	// MaxDelay caps the exponential term.
	MaxDelay time.Duration `yaml:"max_delay" validate:"gtefield=BaseDelay"`
}

// SuggestionConfig controls the keyword search run for unmatched parts.
type SuggestionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Limit caps the number of suggestions attached to a component.
	Limit int `yaml:"limit" validate:"gte=0,lte=25"`
	// Timeout bounds the whole suggestion search for one component.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// CacheConfig selects the lookup cache backend.
type CacheConfig struct {
	Backend   string        `yaml:"backend" validate:"oneof=none memory redis"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	KeyPrefix string        `yaml:"key_prefix" validate:"max=64"`
}

// ConsolidationConfig names the supplier the BOM could consolidate to.
type ConsolidationConfig struct {
	TargetSupplier string `yaml:"target_supplier"`
}

// DefaultConfig returns the configuration used for every key a file omits.
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			Ceiling:   catalog.DefaultRetryCeiling,
			BaseDelay: catalog.DefaultBaseDelay,
			MaxDelay:  catalog.DefaultMaxDelay,
		},
		SupplierPreferences: domain.DefaultSupplierPreferences(),
		Thresholds:          domain.DefaultChangeThresholds(),
		Suggestions: SuggestionConfig{
			Enabled: true,
			Limit:   DefaultSuggestionLimit,
			Timeout: DefaultSuggestionTimeout,
		},
		Cache: CacheConfig{
			Backend:   "none",
			TTL:       24 * time.Hour,
			KeyPrefix: "bomcheck",
		},
		Consolidation: ConsolidationConfig{TargetSupplier: "Mouser"},
	}
}

// configValidator is shared by every load; validator.Validate caches struct
// metadata and is safe for concurrent use.
var configValidator = newConfigValidator()

// newConfigValidator registers the custom tags used by Config. Registration
// only fails for an empty tag or a nil function.
func newConfigValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("providertype", validateProviderType)
	return v
}

// validateProviderType accepts provider types with a registered factory.
func validateProviderType(fl validator.FieldLevel) bool {
	_, ok := catalog.GetProviderFactory(fl.Field().String())
	return ok
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, ports.NewConfigError(path, fmt.Errorf("failed to read file: %w", err))
	}
	return parseConfig(data)
}

// LoadConfigFromReader reads and validates YAML configuration from r.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return parseConfig(data)
}

// parseConfig decodes onto DefaultConfig so omitted keys keep their
// defaults, then validates. Unknown keys are rejected.
func parseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ports.NewConfigError("providers", ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return ports.NewConfigError(first.Namespace(),
				fmt.Errorf("failed %q validation: %w", first.Tag(), domain.ErrInvalidConfiguration))
		}
		return fmt.Errorf("struct validation failed: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		if _, dup := seen[p.Name]; dup {
			return ports.NewConfigError(fmt.Sprintf("providers[%d].name", i),
				fmt.Errorf("duplicate provider name %q: %w", p.Name, domain.ErrInvalidConfiguration))
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Backoff builds the retry policy described by Retry.
func (c *Config) Backoff(opts ...catalog.BackoffOption) *catalog.BackoffPolicy {
	return catalog.NewBackoffPolicy(c.Retry.Ceiling, c.Retry.BaseDelay, c.Retry.MaxDelay, opts...)
}

// OrchestratorConfig extracts the orchestrator settings.
func (c *Config) OrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MergeAllProviders:  c.MergeAllProviders,
		Preferences:        c.SupplierPreferences,
		Thresholds:         c.Thresholds,
		Suggestions:        c.Suggestions,
		Concurrency:        c.Concurrency,
		PriorityComponents: c.PriorityComponents,
	}
}
