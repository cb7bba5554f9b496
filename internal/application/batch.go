package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// defaultWorkers sizes the pool when neither Concurrency nor a rate
// ceiling is known.
const defaultWorkers = 4

// RunResult is everything a BOM validation run produced. Validations keep
// run order: priority components first, then input order.
type RunResult struct {
	RunID       uuid.UUID                    `json:"run_id"`
	StartedAt   time.Time                    `json:"started_at"`
	FinishedAt  time.Time                    `json:"finished_at"`
	Validations []domain.ComponentValidation `json:"validations"`
	// Pending lists components never completed because the run was
	// cancelled.
	Pending []domain.PartQuery `json:"pending,omitempty"`
	Summary Summary            `json:"summary"`

	// run is the quota latch the run used; follow-up lookups share it.
	run *runState
}

// Summary aggregates a run for reports.
type Summary struct {
	Total         int `json:"total"`
	Found         int `json:"found"`
	FoundUnpriced int `json:"found_unpriced"`
	NotFound      int `json:"not_found"`
	Failed        int `json:"failed"`
	// TotalCost sums the extended price of every priced component.
	TotalCost          decimal.Decimal `json:"total_cost"`
	ExhaustedProviders []string        `json:"exhausted_providers,omitempty"`
	// ProviderErrors counts recorded failures per provider, skips excluded.
	ProviderErrors map[string]int `json:"provider_errors,omitempty"`
	Diagnostics    []string       `json:"diagnostics,omitempty"`
}

// ValidateBOM validates every query with a bounded worker pool. Quota
// exhaustion is shared across the run, so a provider that runs out is
// skipped by every later component.
//
// Components that hit an unclassified failure are recorded as failed and the
// run continues; their errors are joined into the returned error alongside
// the complete RunResult. If ctx ends, the components already finished are
// returned with the rest listed as Pending.
func (o *Orchestrator) ValidateBOM(ctx context.Context, queries []domain.PartQuery) (RunResult, error) {
	result := RunResult{
		RunID:     uuid.New(),
		StartedAt: o.now(),
	}
	for i, q := range queries {
		if err := q.Validate(); err != nil {
			return result, fmt.Errorf("query %d: %w", i, err)
		}
	}

	ordered := o.prioritize(queries)
	workers := o.workerLimit(len(ordered))

	ctx, span := o.tracer.Start(ctx, "Orchestrator.ValidateBOM",
		trace.WithAttributes(
			attribute.String("run.id", result.RunID.String()),
			attribute.Int("run.components", len(ordered)),
			attribute.Int("run.workers", workers),
		),
	)
	defer span.End()

	o.logger.InfoContext(ctx, "run.start",
		"run_id", result.RunID.String(),
		"components", len(ordered),
		"workers", workers,
		"providers", len(o.providers),
	)

	type slot struct {
		validation domain.ComponentValidation
		done       bool
		err        error
	}
	slots := make([]slot, len(ordered))
	run := newRunState()
	result.run = run

	var g errgroup.Group
	g.SetLimit(workers)
	for i, q := range ordered {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			v, err := o.validate(ctx, q, run, "")
			switch {
			case err == nil:
				slots[i] = slot{validation: v, done: true}
			case ctx.Err() != nil:
				// Left pending.
			default:
				slots[i] = slot{validation: failedValidation(q, err), done: true, err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, s := range slots {
		if !s.done {
			result.Pending = append(result.Pending, ordered[i])
			continue
		}
		result.Validations = append(result.Validations, s.validation)
		if s.err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", ordered[i].ManufacturerPartNumber, s.err))
		}
	}
	if len(result.Pending) > 0 {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
		}
	}

	result.FinishedAt = o.now()
	result.Summary = summarize(result.Validations, result.Pending, run.exhaustedProviders())

	s := result.Summary
	o.logger.InfoContext(ctx, "run.summary",
		"run_id", result.RunID.String(),
		"total", s.Total,
		"found", s.Found,
		"found_unpriced", s.FoundUnpriced,
		"not_found", s.NotFound,
		"failed", s.Failed,
		"pending", len(result.Pending),
		"total_cost", s.TotalCost.StringFixed(2),
		"exhausted_providers", s.ExhaustedProviders,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	for _, d := range s.Diagnostics {
		o.logger.WarnContext(ctx, "run.diagnostic", "run_id", result.RunID.String(), "message", d)
	}

	span.SetAttributes(
		attribute.Int("run.found", s.Found),
		attribute.Int("run.failed", s.Failed),
		attribute.Int("run.pending", len(result.Pending)),
	)
	return result, errors.Join(errs...)
}

// InRun returns a SupplierValidator bound to the quota latch of result, so
// providers exhausted during that run are skipped without another request.
// A result not produced by ValidateBOM falls back to the orchestrator's
// session latch.
func (o *Orchestrator) InRun(result RunResult) SupplierValidator {
	run := result.run
	if run == nil {
		run = o.session
	}
	return runValidator{o: o, run: run}
}

// runValidator is ValidateWithSupplier against a specific run's latch.
type runValidator struct {
	o   *Orchestrator
	run *runState
}

func (v runValidator) ValidateWithSupplier(ctx context.Context, q domain.PartQuery, supplier string) (domain.ComponentValidation, error) {
	if strings.TrimSpace(supplier) == "" {
		return domain.ComponentValidation{}, fmt.Errorf("supplier: %w", domain.ErrEmptyValue)
	}
	return v.o.validate(ctx, q, v.run, supplier)
}

// prioritize flags configured priority MPNs and moves every priority
// component ahead of the rest, keeping relative order.
func (o *Orchestrator) prioritize(queries []domain.PartQuery) []domain.PartQuery {
	fold := cases.Fold()
	wanted := make(map[string]struct{}, len(o.config.PriorityComponents))
	for _, mpn := range o.config.PriorityComponents {
		wanted[fold.String(strings.TrimSpace(mpn))] = struct{}{}
	}

	ordered := make([]domain.PartQuery, len(queries))
	for i, q := range queries {
		if _, ok := wanted[fold.String(q.ManufacturerPartNumber)]; ok {
			q = q.WithPriority(true)
		}
		ordered[i] = q
	}
	slices.SortStableFunc(ordered, func(a, b domain.PartQuery) int {
		switch {
		case a.Priority == b.Priority:
			return 0
		case a.Priority:
			return -1
		default:
			return 1
		}
	})
	return ordered
}

// workerLimit keeps the pool no larger than the slowest provider's
// per-second ceiling, since every worker funnels through that limiter.
func (o *Orchestrator) workerLimit(n int) int {
	limit := o.config.Concurrency
	if limit <= 0 {
		limit = o.rateCeiling
	}
	if limit <= 0 {
		limit = defaultWorkers
	}
	return max(1, min(limit, n))
}

// failedValidation records a component whose lookup raised an
// unclassified error.
func failedValidation(q domain.PartQuery, err error) domain.ComponentValidation {
	rec := domain.ErrorRecord{
		Class:   domain.ClassUnexpected,
		Message: err.Error(),
	}
	var lerr *ports.LookupError
	if errors.As(err, &lerr) {
		rec.Provider = lerr.Provider
		rec.Attempts = lerr.Attempts
	}
	return domain.NewExhaustedValidation(q, []domain.ErrorRecord{rec}, nil)
}

func summarize(validations []domain.ComponentValidation, pending []domain.PartQuery, exhausted []string) Summary {
	s := Summary{
		Total:              len(validations) + len(pending),
		TotalCost:          decimal.Zero,
		ExhaustedProviders: exhausted,
		ProviderErrors:     make(map[string]int),
	}

	attempted := 0
	for _, v := range validations {
		switch v.Status {
		case domain.StatusFound:
			s.Found++
		case domain.StatusFoundUnpriced:
			s.FoundUnpriced++
		case domain.StatusFailed:
			s.Failed++
		default:
			s.NotFound++
		}
		if total, ok := v.ExtendedPrice(); ok {
			s.TotalCost = s.TotalCost.Add(total)
		}
		for _, rec := range v.Errors {
			if !rec.Skipped {
				s.ProviderErrors[rec.Provider]++
				attempted++
			}
		}
	}

	if len(validations) > 0 && s.Failed == len(validations) && attempted > 0 {
		s.Diagnostics = append(s.Diagnostics,
			"every provider failed for every component; check credentials, quotas and connectivity")
	}
	for _, p := range exhausted {
		s.Diagnostics = append(s.Diagnostics,
			fmt.Sprintf("provider %s exhausted its quota; later components skipped it", p))
	}
	if len(pending) > 0 {
		s.Diagnostics = append(s.Diagnostics,
			fmt.Sprintf("run cancelled with %d of %d components not validated", len(pending), s.Total))
	}
	if len(s.ProviderErrors) == 0 {
		s.ProviderErrors = nil
	}
	return s
}
