// Package observe carries callscript's telemetry: OpenTelemetry metrics for
// call turns and guardrail interventions, call-scoped spans, slog loggers
// tagged with the trace and session id, and the HTTP middleware that joins
// them per request.
//
// [InitProvider] builds the resource from the service and flow being served
// and registers a Prometheus reader so /metrics can be scraped. Tests build
// their own [Metrics] with [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all callscript metrics.
const meterName = "github.com/MrWong99/callscript"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AdvanceDuration tracks the time spent in one advance of a call,
	// including the wait for the per-call lock.
	AdvanceDuration metric.Float64Histogram

	// AuditDuration tracks call-turn audit writes.
	AuditDuration metric.Float64Histogram

	// --- Counters ---

	// Advances counts advances. Use with attribute:
	//   attribute.String("intent", ...)
	Advances metric.Int64Counter

	// GuardrailInterventions counts guardrail actions. Use with attribute:
	//   attribute.String("rule", ...)
	GuardrailInterventions metric.Int64Counter

	// PaymentValidations counts payment envelope checks. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("result", ...)
	PaymentValidations metric.Int64Counter

	// --- Error counters ---

	// AuditErrors counts failed or skipped audit writes.
	AuditErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks calls that are in progress: started and not yet
	// ended or reset.
	ActiveSessions metric.Int64UpDownCounter

	// StreamConnections tracks open websocket bridge connections.
	StreamConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Advances
// do no I/O, so the interesting range is well below a second.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AdvanceDuration, err = m.Float64Histogram("callscript.advance.duration",
		metric.WithDescription("Latency of one call advance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AuditDuration, err = m.Float64Histogram("callscript.audit.duration",
		metric.WithDescription("Latency of call-turn audit writes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Advances, err = m.Int64Counter("callscript.advance.count",
		metric.WithDescription("Total call advances by classified intent."),
	); err != nil {
		return nil, err
	}
	if met.GuardrailInterventions, err = m.Int64Counter("callscript.guardrail.interventions",
		metric.WithDescription("Total guardrail interventions by rule."),
	); err != nil {
		return nil, err
	}
	if met.PaymentValidations, err = m.Int64Counter("callscript.payment.validations",
		metric.WithDescription("Total payment envelope validations by mode and result."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.AuditErrors, err = m.Int64Counter("callscript.audit.errors",
		metric.WithDescription("Total failed or skipped call-turn audit writes."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("callscript.active_sessions",
		metric.WithDescription("Number of calls in progress."),
	); err != nil {
		return nil, err
	}
	if met.StreamConnections, err = m.Int64UpDownCounter("callscript.stream.connections",
		metric.WithDescription("Number of open websocket bridge connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("callscript.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAdvance records one advance with its classified intent. An empty
// intent (first contact) is reported as "none".
func (m *Metrics) RecordAdvance(ctx context.Context, intent string, d time.Duration) {
	if intent == "" {
		intent = "none"
	}
	m.AdvanceDuration.Record(ctx, d.Seconds())
	m.Advances.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordIntervention records one guardrail intervention.
func (m *Metrics) RecordIntervention(ctx context.Context, rule string) {
	m.GuardrailInterventions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("rule", rule)),
	)
}

// RecordPaymentValidation records one payment envelope check. result is
// "ok" or the rejection reason.
func (m *Metrics) RecordPaymentValidation(ctx context.Context, mode, result string) {
	m.PaymentValidations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("result", result),
		),
	)
}

// RecordAuditWrite records the outcome of one audit write.
func (m *Metrics) RecordAuditWrite(ctx context.Context, d time.Duration, err error) {
	m.AuditDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.AuditErrors.Add(ctx, 1)
	}
}
