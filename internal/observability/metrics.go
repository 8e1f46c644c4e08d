// Package observability provides metrics for the jobs service.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics covering the golden signals:
// latency, traffic, errors, and saturation (jobs in flight).
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job lifecycle metrics
	JobsSubmitted metric.Int64Counter
	JobsActive    metric.Int64UpDownCounter
	JobDuration   metric.Float64Histogram

	// Reconciliation metrics
	UpdatesApplied  metric.Int64Counter
	UpdatesAbsorbed metric.Int64Counter
	UpdatesRejected metric.Int64Counter

	// Dispatch hand-off metrics
	DispatchTotal    metric.Int64Counter
	DispatchDuration metric.Float64Histogram
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("mljobs")
	m := &Metrics{meter: meter}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsSubmitted, err = meter.Int64Counter(
		"jobs_submitted_total",
		metric.WithDescription("Total number of training jobs submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of jobs not yet terminal (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Submit-to-terminal job duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.UpdatesApplied, err = meter.Int64Counter(
		"reconcile_updates_applied_total",
		metric.WithDescription("Executor updates applied to job records"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.UpdatesAbsorbed, err = meter.Int64Counter(
		"reconcile_updates_absorbed_total",
		metric.WithDescription("Duplicate terminal updates absorbed as no-ops"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.UpdatesRejected, err = meter.Int64Counter(
		"reconcile_updates_rejected_total",
		metric.WithDescription("Executor updates rejected (unknown job or illegal transition)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatchTotal, err = meter.Int64Counter(
		"dispatch_total",
		metric.WithDescription("Hand-off attempts to the training executor"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram(
		"dispatch_duration_seconds",
		metric.WithDescription("Hand-off call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobSubmitted records a new job entering the pipeline.
func (m *Metrics) RecordJobSubmitted(ctx context.Context, algorithm string) {
	attrs := metric.WithAttributes(algorithmAttr(algorithm))
	m.JobsSubmitted.Add(ctx, 1, attrs)
	m.JobsActive.Add(ctx, 1, attrs)
}

// RecordJobTerminal records a job reaching a terminal state.
func (m *Metrics) RecordJobTerminal(ctx context.Context, algorithm string, success bool, durationSeconds float64) {
	m.JobDuration.Record(ctx, durationSeconds, metric.WithAttributes(algorithmAttr(algorithm), successAttr(success)))
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(algorithmAttr(algorithm)))
}

// RecordUpdateApplied records a successfully applied executor update.
func (m *Metrics) RecordUpdateApplied(ctx context.Context, status string) {
	m.UpdatesApplied.Add(ctx, 1, metric.WithAttributes(jobStatusAttr(status)))
}

// RecordUpdateAbsorbed records a duplicate terminal update absorbed silently.
func (m *Metrics) RecordUpdateAbsorbed(ctx context.Context) {
	m.UpdatesAbsorbed.Add(ctx, 1)
}

// RecordUpdateRejected records a rejected update with its rejection reason.
func (m *Metrics) RecordUpdateRejected(ctx context.Context, reason string) {
	m.UpdatesRejected.Add(ctx, 1, metric.WithAttributes(reasonAttr(reason)))
}

// RecordDispatch records a hand-off attempt and its outcome.
func (m *Metrics) RecordDispatch(ctx context.Context, delivered bool, durationSeconds float64) {
	m.DispatchTotal.Add(ctx, 1, metric.WithAttributes(deliveredAttr(delivered)))
	m.DispatchDuration.Record(ctx, durationSeconds)
}
