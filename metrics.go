package saga

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder publishes saga execution metrics through an OpenTelemetry
// meter. A nil recorder is valid and records nothing, so instrumentation
// stays optional.
type MetricsRecorder struct {
	meter metric.Meter

	initOnce sync.Once
	initErr  error

	sagaExecutions metric.Int64Counter
	sagaDuration   metric.Float64Histogram
	stepExecutions metric.Int64Counter
	stepDuration   metric.Float64Histogram
	compensations  metric.Int64Counter

	activeSagas atomic.Int64
}

// NewMetricsRecorder creates a recorder publishing through the meter.
func NewMetricsRecorder(meter metric.Meter) *MetricsRecorder {
	return &MetricsRecorder{meter: meter}
}

// init lazily creates the instruments so constructing a recorder never
// fails; instrument errors surface as a recorder that records nothing.
func (r *MetricsRecorder) init() bool {
	r.initOnce.Do(func() {
		r.sagaExecutions, r.initErr = r.meter.Int64Counter(
			"saga_executions_total",
			metric.WithDescription("Completed saga runs by terminal status"),
		)
		if r.initErr != nil {
			return
		}
		r.sagaDuration, r.initErr = r.meter.Float64Histogram(
			"saga_duration_seconds",
			metric.WithDescription("Wall-clock duration of saga runs"),
			metric.WithUnit("s"),
		)
		if r.initErr != nil {
			return
		}
		r.stepExecutions, r.initErr = r.meter.Int64Counter(
			"saga_step_executions_total",
			metric.WithDescription("Step forward-action attempts by result"),
		)
		if r.initErr != nil {
			return
		}
		r.stepDuration, r.initErr = r.meter.Float64Histogram(
			"saga_step_duration_seconds",
			metric.WithDescription("Duration of step forward actions"),
			metric.WithUnit("s"),
		)
		if r.initErr != nil {
			return
		}
		r.compensations, r.initErr = r.meter.Int64Counter(
			"saga_compensation_steps_total",
			metric.WithDescription("Compensation attempts by result"),
		)
		if r.initErr != nil {
			return
		}
		_, r.initErr = r.meter.Int64ObservableGauge(
			"saga_active_runs",
			metric.WithDescription("Saga runs currently in flight"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(r.activeSagas.Load())
				return nil
			}),
		)
	})
	return r.initErr == nil
}

// RecordSagaStart marks a run as in flight.
func (r *MetricsRecorder) RecordSagaStart(SagaName) {
	if r == nil || !r.init() {
		return
	}
	r.activeSagas.Add(1)
}

// RecordSagaEnd marks a run as finished with the given terminal status.
func (r *MetricsRecorder) RecordSagaEnd(ctx context.Context, saga SagaName, status string, elapsed time.Duration) {
	if r == nil || !r.init() {
		return
	}
	r.activeSagas.Add(-1)
	attrs := metric.WithAttributes(
		attribute.String("saga", string(saga)),
		attribute.String("status", status),
	)
	r.sagaExecutions.Add(ctx, 1, attrs)
	r.sagaDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordStepExecution records one forward-action attempt.
func (r *MetricsRecorder) RecordStepExecution(ctx context.Context, saga SagaName, step StepName, err error, elapsed time.Duration) {
	if r == nil || !r.init() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("saga", string(saga)),
		attribute.String("step", string(step)),
		attribute.String("result", resultLabel(err)),
	)
	r.stepExecutions.Add(ctx, 1, attrs)
	r.stepDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordCompensation records one compensation attempt.
func (r *MetricsRecorder) RecordCompensation(ctx context.Context, saga SagaName, step StepName, err error) {
	if r == nil || !r.init() {
		return
	}
	r.compensations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("saga", string(saga)),
		attribute.String("step", string(step)),
		attribute.String("result", resultLabel(err)),
	))
}

// ActiveRuns returns the current in-flight run count.
func (r *MetricsRecorder) ActiveRuns() int64 {
	if r == nil {
		return 0
	}
	return r.activeSagas.Load()
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
