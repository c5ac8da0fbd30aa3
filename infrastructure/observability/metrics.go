package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/threadgate/infrastructure/poll"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

// Metric names.
const (
	MetricSaves             = "threadgate.saves"
	MetricWriteFailures     = "threadgate.write_failures"
	MetricPollAttempts      = "threadgate.poll_attempts"
	MetricSoftSuccesses     = "threadgate.soft_successes"
	MetricReconcileDuration = "threadgate.reconcile_duration"
)

// SaveMetrics records policy save outcomes as OpenTelemetry instruments.
type SaveMetrics struct {
	saves         metric.Int64Counter
	writeFailures metric.Int64Counter
	pollAttempts  metric.Int64Counter
	softSuccesses metric.Int64Counter
	reconcile     metric.Float64Histogram
}

// NewSaveMetrics creates the save instruments on meter.
func NewSaveMetrics(meter metric.Meter) (*SaveMetrics, error) {
	m := &SaveMetrics{}
	var err error

	if m.saves, err = meter.Int64Counter(MetricSaves,
		metric.WithDescription("Completed policy saves"),
		metric.WithUnit("{save}"),
	); err != nil {
		return nil, err
	}
	if m.writeFailures, err = meter.Int64Counter(MetricWriteFailures,
		metric.WithDescription("Failed policy record writes"),
		metric.WithUnit("{write}"),
	); err != nil {
		return nil, err
	}
	if m.pollAttempts, err = meter.Int64Counter(MetricPollAttempts,
		metric.WithDescription("Read-path fetches made while reconciling"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}
	if m.softSuccesses, err = meter.Int64Counter(MetricSoftSuccesses,
		metric.WithDescription("Reconciliations that ran out of attempts"),
		metric.WithUnit("{poll}"),
	); err != nil {
		return nil, err
	}
	if m.reconcile, err = meter.Float64Histogram(MetricReconcileDuration,
		metric.WithDescription("Time spent waiting for the read path"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveCompleted records a finished save.
func (m *SaveMetrics) SaveCompleted(ctx context.Context, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// WriteFailed records one failed record write.
func (m *SaveMetrics) WriteFailed(ctx context.Context, stage store.Stage) {
	m.writeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
}

// Reconciled records a finished reconciliation poll.
func (m *SaveMetrics) Reconciled(ctx context.Context, report poll.Report, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("converged", report.Converged))
	m.pollAttempts.Add(ctx, int64(report.Attempts), attrs)
	if report.Exhausted() {
		m.softSuccesses.Add(ctx, 1)
	}
	m.reconcile.Record(ctx, elapsed.Seconds(), attrs)
}
