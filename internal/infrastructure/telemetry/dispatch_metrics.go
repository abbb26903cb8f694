package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const dispatchMeterName = "omnihub.dispatch"

// DispatchMetrics records dispatch pipeline instrumentation: outbound requests,
// retries, rate-limit waits, and webhook verification outcomes.
type DispatchMetrics struct {
	requests      metric.Int64Counter
	retries       metric.Int64Counter
	rateLimitWait metric.Float64Histogram
	webhooks      metric.Int64Counter
	dispatchTime  metric.Float64Histogram
}

// NewDispatchMetrics registers the dispatch instruments on the given meter
// provider. With a no-op provider every recording becomes a no-op, so callers
// never need to nil-check.
func NewDispatchMetrics(mp *MeterProvider) (*DispatchMetrics, error) {
	meter := mp.Meter(dispatchMeterName)

	requests, err := meter.Int64Counter("dispatch.requests",
		metric.WithDescription("Outbound platform requests by platform and outcome"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("dispatch.retries",
		metric.WithDescription("Retry attempts by platform"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitWait, err := meter.Float64Histogram("dispatch.rate_limit_wait_seconds",
		metric.WithDescription("Time spent waiting for rate limit admission"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	webhooks, err := meter.Int64Counter("webhook.verifications",
		metric.WithDescription("Webhook signature verifications by platform and outcome"),
	)
	if err != nil {
		return nil, err
	}

	dispatchTime, err := meter.Float64Histogram("dispatch.duration_seconds",
		metric.WithDescription("End-to-end dispatch duration per platform"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &DispatchMetrics{
		requests:      requests,
		retries:       retries,
		rateLimitWait: rateLimitWait,
		webhooks:      webhooks,
		dispatchTime:  dispatchTime,
	}, nil
}

// RecordRequest counts one outbound request. Outcome is "success", "retryable"
// or "fatal".
func (m *DispatchMetrics) RecordRequest(ctx context.Context, platform, outcome string) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("outcome", outcome),
	))
}

// RecordRetry counts one retry attempt against a platform.
func (m *DispatchMetrics) RecordRetry(ctx context.Context, platform string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
	))
}

// RecordRateLimitWait records how long a request waited for admission.
func (m *DispatchMetrics) RecordRateLimitWait(ctx context.Context, platform string, wait time.Duration) {
	m.rateLimitWait.Record(ctx, wait.Seconds(), metric.WithAttributes(
		attribute.String("platform", platform),
	))
}

// RecordWebhookVerification counts one verification. Outcome is "accepted",
// "rejected" or "skipped".
func (m *DispatchMetrics) RecordWebhookVerification(ctx context.Context, platform, outcome string) {
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("outcome", outcome),
	))
}

// RecordDispatchDuration records end-to-end duration of a platform dispatch.
func (m *DispatchMetrics) RecordDispatchDuration(ctx context.Context, platform string, d time.Duration) {
	m.dispatchTime.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("platform", platform),
	))
}
