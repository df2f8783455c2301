package telemetry

import (
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/wolfeidau/tenantd"

// Metrics holds the API level instruments. Lifecycle counters live with the tenant manager.
type Metrics struct {
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter
	APIErrorsTotal     metric.Int64Counter
	SweepsTotal        metric.Int64Counter
	SweepDuration      metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the process wide instruments. They bind to the meter provider installed at
// first use, so InitTelemetry must run before the first request is served.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = newMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return metrics
}

func newMetrics(meter metric.Meter) *Metrics {
	return &Metrics{
		LoginsTotal:        counter(meter, "tenantd.auth.logins.total", "Successful admin logins", "{login}"),
		LoginFailuresTotal: counter(meter, "tenantd.auth.login_failures.total", "Rejected admin logins", "{login}"),
		APIErrorsTotal:     counter(meter, "tenantd.api.errors.total", "API error responses by reason", "{error}"),
		SweepsTotal:        counter(meter, "tenantd.recovery.sweeps.total", "Recovery sweep passes by outcome", "{sweep}"),
		SweepDuration:      histogram(meter, "tenantd.recovery.sweep.duration", "Duration of recovery sweep passes", "ms"),
	}
}

// counter falls back to a no-op instrument so callers never check for nil.
func counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		log.Warn().Err(err).Str("instrument", name).Msg("Failed to create counter")
		return noop.Int64Counter{}
	}
	return c
}

func histogram(meter metric.Meter, name, desc, unit string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		log.Warn().Err(err).Str("instrument", name).Msg("Failed to create histogram")
		return noop.Float64Histogram{}
	}
	return h
}
