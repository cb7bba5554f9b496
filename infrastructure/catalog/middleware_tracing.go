package catalog

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// tracedCatalog wraps each call in an OpenTelemetry span.
type tracedCatalog struct {
	next   CoreCatalog
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that adds a span per catalog call.
// The tracer comes from the global provider, which is a no-op until the
// application installs one.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)
	return func(next CoreCatalog) CoreCatalog {
		return &tracedCatalog{
			next:   next,
			tracer: tracer,
		}
	}
}

// DoLookup executes the request within a span.
func (t *tracedCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	ctx, span := t.tracer.Start(ctx, "catalog.lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("catalog.provider", t.next.ProviderID()),
			attribute.String("catalog.kind", req.Kind.String()),
			attribute.String("catalog.term", req.Term),
		),
	)
	defer span.End()

	offers, err := t.next.DoLookup(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return offers, err
	}

	span.SetAttributes(attribute.Int("catalog.offers", len(offers)))
	span.SetStatus(codes.Ok, "")
	return offers, nil
}

// ProviderID returns the identifier from the wrapped implementation.
func (t *tracedCatalog) ProviderID() string { return t.next.ProviderID() }
