package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// Suggestion defaults.
const (
	DefaultSuggestionLimit   = 3
	DefaultSuggestionTimeout = 10 * time.Second

	// DefaultMaxAlternatives is the number of runner-up offers kept on a
	// found component.
	DefaultMaxAlternatives = 4
)

// OrchestratorConfig holds the settings that shape a component validation.
type OrchestratorConfig struct {
	MergeAllProviders bool
	Preferences       domain.SupplierPreferences
	Thresholds        domain.ChangeThresholds
	Suggestions       SuggestionConfig
	// MaxAlternatives caps the runners-up kept per component. Zero uses
	// DefaultMaxAlternatives; a negative value keeps none.
	MaxAlternatives int
	// Concurrency bounds ValidateBOM's worker pool. Zero derives a bound
	// from the providers' per-second ceilings.
	Concurrency int
	// PriorityComponents are MPNs flagged as priority by ValidateBOM.
	PriorityComponents []string
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the event logger. The default discards everything.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector ports.MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = collector }
}

// WithBackoff sets the retry policy applied to every provider call. It is
// required.
func WithBackoff(policy ports.RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		if policy != nil {
			o.backoff = policy
		}
	}
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithRateCeiling sets the per-second request ceiling used to size the
// worker pool when Concurrency is zero.
func WithRateCeiling(perSecond int) OrchestratorOption {
	return func(o *Orchestrator) { o.rateCeiling = perSecond }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator drives the lookup of each component across the configured
// providers: it tries them in priority order, retries transient failures,
// falls back on fatal ones and ranks what it finds.
//
// An Orchestrator is safe for concurrent use.
type Orchestrator struct {
	providers []ports.CatalogProvider
	config    OrchestratorConfig
	scorer    *domain.SupplierScorer
	backoff   ports.RetryPolicy

	logger      *slog.Logger
	metrics     ports.MetricsCollector
	tracer      trace.Tracer
	now         func() time.Time
	rateCeiling int

	// session tracks quota exhaustion for calls made outside ValidateBOM.
	session *runState
}

// NewOrchestrator builds an orchestrator over providers in priority order.
func NewOrchestrator(providers []ports.CatalogProvider, config OrchestratorConfig, opts ...OrchestratorOption) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required: %w", domain.ErrInvalidConfiguration)
	}
	seen := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("nil provider: %w", domain.ErrInvalidConfiguration)
		}
		if _, dup := seen[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate provider %q: %w", p.ID(), domain.ErrInvalidConfiguration)
		}
		seen[p.ID()] = struct{}{}
	}

	if config.MaxAlternatives == 0 {
		config.MaxAlternatives = DefaultMaxAlternatives
	}
	if config.Suggestions.Enabled && config.Suggestions.Limit == 0 {
		config.Suggestions.Limit = DefaultSuggestionLimit
	}

	o := &Orchestrator{
		providers: slices.Clone(providers),
		config:    config,
		scorer:    domain.NewSupplierScorer(config.Preferences),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer("bomcheck-orchestrator"),
		now:       time.Now,
		session:   newRunState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.backoff == nil {
		return nil, fmt.Errorf("retry policy: %w", domain.ErrInvalidConfiguration)
	}
	return o, nil
}

// runState is shared by every component of one run. A provider whose quota
// is exhausted is latched here and skipped for the rest of the run.
type runState struct {
	mu        sync.Mutex
	exhausted map[string]error
}

func newRunState() *runState {
	return &runState{exhausted: make(map[string]error)}
}

func (s *runState) latch(provider string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exhausted[provider]; ok {
		return false
	}
	s.exhausted[provider] = err
	return true
}

func (s *runState) isExhausted(provider string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.exhausted[provider]
	return ok
}

func (s *runState) exhaustedProviders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.exhausted))
	for p := range s.exhausted {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// ValidateComponent looks q up across the providers and returns its single
// validation record. A returned error means the lookup hit an unclassified
// failure or ctx ended; not finding the part is not an error.
func (o *Orchestrator) ValidateComponent(ctx context.Context, q domain.PartQuery) (domain.ComponentValidation, error) {
	return o.validate(ctx, q, o.session, "")
}

// ValidateWithSupplier is ValidateComponent restricted to offers sold by
// supplier, compared case-insensitively. No suggestions are searched.
func (o *Orchestrator) ValidateWithSupplier(ctx context.Context, q domain.PartQuery, supplier string) (domain.ComponentValidation, error) {
	if strings.TrimSpace(supplier) == "" {
		return domain.ComponentValidation{}, fmt.Errorf("supplier: %w", domain.ErrEmptyValue)
	}
	return o.validate(ctx, q, o.session, supplier)
}

func (o *Orchestrator) validate(ctx context.Context, q domain.PartQuery, run *runState, supplier string) (domain.ComponentValidation, error) {
	if err := q.Validate(); err != nil {
		return domain.ComponentValidation{}, err
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.ValidateComponent",
		trace.WithAttributes(
			attribute.String("part.mpn", q.ManufacturerPartNumber),
			attribute.String("part.manufacturer", q.Manufacturer),
			attribute.Int("part.quantity", q.RequestedQuantity),
			attribute.Bool("part.priority", q.Priority),
		),
	)
	defer span.End()

	var (
		records []domain.ErrorRecord
		pool    []domain.CatalogOffer
	)

	for _, p := range o.providers {
		if err := ctx.Err(); err != nil {
			return domain.ComponentValidation{}, err
		}

		id := p.ID()
		if run.isExhausted(id) {
			records = append(records, domain.ErrorRecord{
				Provider: id,
				Class:    domain.ClassFatal,
				Message:  "skipped: quota exhausted earlier in run",
				Skipped:  true,
			})
			continue
		}

		offers, attempts, err := o.lookup(ctx, p, q)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.ComponentValidation{}, ctxErr
			}
			rec, fatal := o.handleProviderError(ctx, run, id, q, attempts, err)
			if fatal != nil {
				span.RecordError(fatal)
				span.SetStatus(codes.Error, "unexpected provider error")
				return domain.ComponentValidation{}, fatal
			}
			records = append(records, rec)
			continue
		}

		offers = o.prepareOffers(id, offers, supplier)
		if len(offers) == 0 {
			o.logger.DebugContext(ctx, "lookup.no_match", "provider", id, "mpn", q.ManufacturerPartNumber)
			continue
		}

		if o.config.MergeAllProviders {
			pool = append(pool, offers...)
			continue
		}
		if ranked := o.scorer.Rank(offers, q.RequestedQuantity); len(ranked) > 0 {
			v := o.found(ctx, q, ranked, id, records)
			span.SetAttributes(attribute.String("result.provider", id))
			return v, nil
		}
		o.logger.DebugContext(ctx, "lookup.no_acceptable_offer", "provider", id, "mpn", q.ManufacturerPartNumber,
			"offers", len(offers))
	}

	if len(pool) > 0 {
		if ranked := o.scorer.Rank(pool, q.RequestedQuantity); len(ranked) > 0 {
			v := o.found(ctx, q, ranked, ranked[0].Offer.ProviderID, records)
			span.SetAttributes(attribute.String("result.provider", v.ProviderUsed))
			return v, nil
		}
	}

	var suggestions []domain.CatalogOffer
	if supplier == "" {
		suggestions = o.suggest(ctx, q, run)
	}
	v := domain.NewExhaustedValidation(q, records, suggestions)
	o.logger.InfoContext(ctx, "component.not_found",
		"mpn", q.ManufacturerPartNumber,
		"manufacturer", q.Manufacturer,
		"status", v.Status.String(),
		"provider_errors", len(records),
		"suggestions", len(suggestions),
	)
	o.recordValidation(v)
	return v, nil
}

// lookup runs one provider attempt under the retry policy.
func (o *Orchestrator) lookup(ctx context.Context, p ports.CatalogProvider, q domain.PartQuery) ([]domain.CatalogOffer, int, error) {
	var (
		offers []domain.CatalogOffer
		call   int
	)
	attempts, err := o.backoff.DoNotify(ctx,
		func(ctx context.Context) error {
			call++
			o.logger.DebugContext(ctx, "lookup.attempt",
				"provider", p.ID(), "mpn", q.ManufacturerPartNumber, "attempt", call)
			var err error
			offers, err = p.Lookup(ctx, q)
			return err
		},
		func(attempt int, err error, class domain.ErrorClass, delay time.Duration) {
			o.logger.WarnContext(ctx, "lookup.retry",
				"provider", p.ID(),
				"mpn", q.ManufacturerPartNumber,
				"attempt", attempt,
				"class", class.String(),
				"delay", delay,
				"error", err,
			)
		},
	)
	return offers, attempts, err
}

// handleProviderError turns a failed attempt into an error record. A
// non-nil second result means the failure is unclassified and must stop
// the component.
func (o *Orchestrator) handleProviderError(
	ctx context.Context,
	run *runState,
	provider string,
	q domain.PartQuery,
	attempts int,
	err error,
) (domain.ErrorRecord, error) {
	class := o.backoff.Classify(err)
	o.recordProviderError(provider, class)

	if class == domain.ClassUnexpected {
		lerr := ports.NewLookupError(provider, q.ManufacturerPartNumber, attempts, err)
		o.logger.ErrorContext(ctx, "component.unexpected_error",
			"provider", provider,
			"mpn", q.ManufacturerPartNumber,
			"manufacturer", q.Manufacturer,
			"quantity", q.RequestedQuantity,
			"attempts", attempts,
			"error", err,
		)
		return domain.ErrorRecord{}, lerr
	}

	rec := domain.ErrorRecord{
		Provider: provider,
		Class:    class,
		Message:  err.Error(),
		Attempts: attempts,
	}

	if class == domain.ClassFatal {
		o.logger.WarnContext(ctx, "lookup.fatal",
			"provider", provider, "mpn", q.ManufacturerPartNumber, "error", err)
		if errors.Is(err, ports.ErrQuotaExceeded) && run.latch(provider, err) {
			o.logger.WarnContext(ctx, "provider.exhausted", "provider", provider, "error", err)
			if o.metrics != nil {
				o.metrics.RecordCounter(ports.MetricProvidersExhausted, 1, map[string]string{"provider": provider})
			}
		}
		return rec, nil
	}

	o.logger.WarnContext(ctx, "lookup.retries_exhausted",
		"provider", provider,
		"mpn", q.ManufacturerPartNumber,
		"class", class.String(),
		"attempts", attempts,
		"error", err,
	)
	return rec, nil
}

// prepareOffers stamps the provider id and, for supplier-restricted
// lookups, keeps only that supplier's offers.
func (o *Orchestrator) prepareOffers(provider string, offers []domain.CatalogOffer, supplier string) []domain.CatalogOffer {
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(supplier))

	out := make([]domain.CatalogOffer, 0, len(offers))
	for _, offer := range offers {
		if offer.ProviderID == "" {
			offer.ProviderID = provider
		}
		if want != "" && !strings.Contains(fold.String(offer.Supplier), want) {
			continue
		}
		out = append(out, offer)
	}
	return out
}

func (o *Orchestrator) found(
	ctx context.Context,
	q domain.PartQuery,
	ranked []domain.SupplierScore,
	provider string,
	records []domain.ErrorRecord,
) domain.ComponentValidation {
	best := ranked[0]

	var alternatives []domain.SupplierScore
	if n := o.config.MaxAlternatives; n > 0 && len(ranked) > 1 {
		alternatives = ranked[1:min(len(ranked), n+1)]
	}

	var change *domain.PriceChange
	if best.Price != nil && q.HasCurrentPrice() {
		change = domain.ComparePrice(q.CurrentUnitPrice, best.Price.UnitPrice, q.Priority, o.config.Thresholds)
	}

	v := domain.NewFoundValidation(q, best, provider, records, alternatives, change)
	if v.Unpriced() {
		o.logger.WarnContext(ctx, "component.unpriced",
			"mpn", q.ManufacturerPartNumber,
			"provider", provider,
			"supplier", v.ChosenOffer.Supplier,
		)
	} else {
		attrs := []any{
			"mpn", q.ManufacturerPartNumber,
			"provider", provider,
			"supplier", v.ChosenOffer.Supplier,
			"unit_price", v.ResolvedPrice.UnitPrice.String(),
			"total_price", v.ResolvedPrice.TotalPrice.String(),
			"score", best.Score,
		}
		if change != nil && change.Level != domain.ChangeNone {
			attrs = append(attrs, "price_change_percent", change.Percent.String(), "price_change_level", change.Level.String())
		}
		o.logger.InfoContext(ctx, "component.found", attrs...)
	}
	o.recordValidation(v)
	return v
}

// suggest runs a single best-effort keyword search per provider and ranks
// the candidates by edit distance to the requested MPN. Failures are
// logged and skipped.
func (o *Orchestrator) suggest(ctx context.Context, q domain.PartQuery, run *runState) []domain.CatalogOffer {
	cfg := o.config.Suggestions
	if !cfg.Enabled || cfg.Limit <= 0 {
		return nil
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	fold := cases.Fold()
	target := fold.String(q.ManufacturerPartNumber)

	type candidate struct {
		offer    domain.CatalogOffer
		distance int
	}
	var (
		candidates []candidate
		seen       = make(map[string]struct{})
	)

	for _, p := range o.providers {
		if ctx.Err() != nil {
			break
		}
		if run.isExhausted(p.ID()) {
			continue
		}
		offers, err := p.SearchKeyword(ctx, q.ManufacturerPartNumber, q.Manufacturer, cfg.Limit)
		if err != nil {
			if errors.Is(err, ports.ErrQuotaExceeded) && run.latch(p.ID(), err) {
				o.logger.WarnContext(ctx, "provider.exhausted", "provider", p.ID(), "error", err)
			}
			o.logger.DebugContext(ctx, "suggestions.failed", "provider", p.ID(), "mpn", q.ManufacturerPartNumber, "error", err)
			continue
		}
		for _, offer := range offers {
			mpn := fold.String(offer.ManufacturerPartNumber)
			if mpn == "" {
				continue
			}
			if _, dup := seen[mpn]; dup {
				continue
			}
			seen[mpn] = struct{}{}
			if offer.ProviderID == "" {
				offer.ProviderID = p.ID()
			}
			candidates = append(candidates, candidate{offer: offer, distance: levenshtein.ComputeDistance(target, mpn)})
		}
		if len(candidates) >= cfg.Limit {
			break
		}
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int { return a.distance - b.distance })
	if len(candidates) > cfg.Limit {
		candidates = candidates[:cfg.Limit]
	}

	out := make([]domain.CatalogOffer, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.offer)
	}
	return out
}

func (o *Orchestrator) recordValidation(v domain.ComponentValidation) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordCounter(ports.MetricComponentValidations, 1, map[string]string{
		"status":   v.Status.String(),
		"provider": v.ProviderUsed,
	})
}

func (o *Orchestrator) recordProviderError(provider string, class domain.ErrorClass) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordCounter(ports.MetricProviderErrors, 1, map[string]string{
		"provider": provider,
		"class":    class.String(),
	})
}
