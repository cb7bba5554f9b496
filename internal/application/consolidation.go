package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// SupplierValidator looks a part up restricted to one supplier.
// *Orchestrator implements it.
type SupplierValidator interface {
	ValidateWithSupplier(ctx context.Context, q domain.PartQuery, supplier string) (domain.ComponentValidation, error)
}

var _ SupplierValidator = (*Orchestrator)(nil)

// ConsolidationOption customizes a ConsolidationAnalyzer.
type ConsolidationOption func(*ConsolidationAnalyzer)

// WithConsolidationLogger sets the event logger.
func WithConsolidationLogger(logger *slog.Logger) ConsolidationOption {
	return func(a *ConsolidationAnalyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithConsolidationTracer replaces the tracer taken from the global provider.
func WithConsolidationTracer(tracer trace.Tracer) ConsolidationOption {
	return func(a *ConsolidationAnalyzer) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// ConsolidationAnalyzer compares the cost of a validated BOM with buying
// every line from a single target supplier.
type ConsolidationAnalyzer struct {
	validator SupplierValidator
	target    string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewConsolidationAnalyzer creates an analyzer that prices lines at target
// through v.
func NewConsolidationAnalyzer(v SupplierValidator, target string, opts ...ConsolidationOption) *ConsolidationAnalyzer {
	a := &ConsolidationAnalyzer{
		validator: v,
		target:    strings.TrimSpace(target),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer("bomcheck-consolidation"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze prices each line at the target supplier. A line's current price is
// its validated extended price, falling back to the BOM price; lines with
// neither are listed as unpriced and left out of both totals. Lines the
// target cannot supply keep their current price in the single-supplier
// total and are listed as unresolved.
//
// Lookup failures other than cancellation mark the line unresolved with a
// warning; a cancelled ctx aborts the analysis.
func (a *ConsolidationAnalyzer) Analyze(ctx context.Context, bom []domain.ComponentValidation) (domain.ConsolidationReport, error) {
	if a.target == "" {
		return domain.ConsolidationReport{}, fmt.Errorf("target supplier: %w", domain.ErrEmptyValue)
	}
	if a.validator == nil {
		return domain.ConsolidationReport{}, fmt.Errorf("supplier validator: %w", domain.ErrInvalidConfiguration)
	}

	ctx, span := a.tracer.Start(ctx, "ConsolidationAnalyzer.Analyze",
		trace.WithAttributes(
			attribute.String("consolidation.target", a.target),
			attribute.Int("consolidation.lines", len(bom)),
		),
	)
	defer span.End()

	fold := cases.Fold()
	target := fold.String(a.target)

	report := domain.ConsolidationReport{
		TargetSupplier:       a.target,
		CurrentTotal:         decimal.Zero,
		SingleSupplierTotal:  decimal.Zero,
		UnresolvedComponents: []domain.PartQuery{},
		Lines:                []domain.ConsolidationLine{},
	}

	for _, v := range bom {
		if err := ctx.Err(); err != nil {
			return domain.ConsolidationReport{}, err
		}

		current, currency, ok := currentPrice(v)
		if !ok {
			report.UnpricedComponents = append(report.UnpricedComponents, v.Query)
			continue
		}
		if currency != "" {
			if report.Currency == "" {
				report.Currency = currency
			} else if currency != report.Currency {
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"%s priced in %s, report totals are in %s", v.Query.ManufacturerPartNumber, currency, report.Currency))
			}
		}

		line := domain.ConsolidationLine{
			Query:           v.Query,
			CurrentSupplier: v.Supplier(),
			CurrentPrice:    current,
			TargetPrice:     current,
			Savings:         decimal.Zero,
		}

		if strings.Contains(fold.String(line.CurrentSupplier), target) {
			line.Resolved = true
			line.TargetOffer = v.ChosenOffer
			line.Note = "already sourced from target supplier"
		} else {
			tv, err := a.validator.ValidateWithSupplier(ctx, v.Query, a.target)
			switch {
			case err != nil && ctx.Err() != nil:
				return domain.ConsolidationReport{}, ctx.Err()
			case err != nil:
				a.logger.WarnContext(ctx, "consolidation.lookup_failed",
					"mpn", v.Query.ManufacturerPartNumber, "target", a.target, "error", err)
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"%s: lookup at %s failed: %v", v.Query.ManufacturerPartNumber, a.target, err))
				line.Note = "target lookup failed"
			case tv.Found && tv.ResolvedPrice != nil:
				line.Resolved = true
				line.TargetPrice = tv.ResolvedPrice.TotalPrice
				line.TargetOffer = tv.ChosenOffer
			case tv.Found:
				line.Note = "target lists the part without pricing"
			default:
				line.Note = "no equivalent at target supplier"
			}
			if !line.Resolved {
				report.UnresolvedComponents = append(report.UnresolvedComponents, v.Query)
			}
		}

		line.Savings = line.CurrentPrice.Sub(line.TargetPrice)
		report.CurrentTotal = report.CurrentTotal.Add(line.CurrentPrice)
		report.SingleSupplierTotal = report.SingleSupplierTotal.Add(line.TargetPrice)
		report.Lines = append(report.Lines, line)
	}

	report.Savings = report.CurrentTotal.Sub(report.SingleSupplierTotal)
	report.SavingsPercent = decimal.Zero
	if report.CurrentTotal.IsPositive() {
		report.SavingsPercent = report.Savings.Div(report.CurrentTotal).Mul(decimal.NewFromInt(100)).Round(2)
	}
	report.Recommended = report.Savings.IsPositive()

	a.logger.InfoContext(ctx, "consolidation.summary",
		"target", a.target,
		"current_total", report.CurrentTotal.StringFixed(2),
		"single_supplier_total", report.SingleSupplierTotal.StringFixed(2),
		"savings", report.Savings.StringFixed(2),
		"recommended", report.Recommended,
		"unresolved", len(report.UnresolvedComponents),
		"unpriced", len(report.UnpricedComponents),
	)
	span.SetAttributes(
		attribute.String("consolidation.savings", report.Savings.String()),
		attribute.Bool("consolidation.recommended", report.Recommended),
	)
	return report, nil
}

// currentPrice returns the line's extended price: the validated price when
// there is one, otherwise the BOM's own unit price times quantity.
func currentPrice(v domain.ComponentValidation) (decimal.Decimal, string, bool) {
	if v.ResolvedPrice != nil {
		return v.ResolvedPrice.TotalPrice, v.ResolvedPrice.Currency, true
	}
	if v.Query.HasCurrentPrice() {
		return v.Query.CurrentExtendedPrice(), "", true
	}
	return decimal.Zero, "", false
}
