package tenant

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/wolfeidau/tenantd/internal/tenant"

var tracer = otel.Tracer(instrumentationName)

type instruments struct {
	operations metric.Int64Counter
	copied     metric.Int64Counter
	recovered  metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)

	operations, err := meter.Int64Counter("tenantd.lifecycle.operations",
		metric.WithDescription("Lifecycle operations by operation and outcome"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create operations counter")
		operations = noop.Int64Counter{}
	}

	copied, err := meter.Int64Counter("tenantd.rename.documents_copied",
		metric.WithDescription("Documents copied between partitions by renames"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create documents copied counter")
		copied = noop.Int64Counter{}
	}

	recovered, err := meter.Int64Counter("tenantd.recovery.actions",
		metric.WithDescription("Repairs performed by the recovery sweep"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create recovery counter")
		recovered = noop.Int64Counter{}
	}

	return &instruments{operations: operations, copied: copied, recovered: recovered}
}

func (i *instruments) record(ctx context.Context, operation string, err error) {
	i.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	))
}

func (i *instruments) repaired(ctx context.Context, action string) {
	i.recovered.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// finish records the outcome of a lifecycle operation on its span and counter.
func (m *Manager) finish(ctx context.Context, span trace.Span, operation string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.metrics.record(ctx, operation, err)
	span.End()
}
