package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/tenantgate"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Tenant resolution metrics
	ResolutionsTotal          metric.Int64Counter
	ResolutionDuration        metric.Float64Histogram
	DirectoryLookupsTotal     metric.Int64Counter
	ResolutionRetriesTotal    metric.Int64Counter
	ResolutionsDiscardedTotal metric.Int64Counter
	InvalidationsTotal        metric.Int64Counter

	// Plan limit metrics
	LimitChecksTotal          metric.Int64Counter
	ExpiryWriteBacksTotal     metric.Int64Counter
	ExpiryWriteBackErrorTotal metric.Int64Counter

	// Identity event metrics
	SessionEventsTotal      metric.Int64Counter
	SessionEventErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ResolutionsTotal, _ = meter.Int64Counter(
		"tenantgate.tenant.resolutions.total",
		metric.WithDescription("Total number of tenant resolutions by outcome"),
		metric.WithUnit("{resolution}"),
	)

	m.ResolutionDuration, _ = meter.Float64Histogram(
		"tenantgate.tenant.resolution.duration",
		metric.WithDescription("Duration of tenant resolution including retries"),
		metric.WithUnit("ms"),
	)

	m.DirectoryLookupsTotal, _ = meter.Int64Counter(
		"tenantgate.tenant.directory_lookups.total",
		metric.WithDescription("Total number of tenant directory lookups"),
		metric.WithUnit("{lookup}"),
	)

	m.ResolutionRetriesTotal, _ = meter.Int64Counter(
		"tenantgate.tenant.retries.total",
		metric.WithDescription("Total number of resolution retries after transient failures"),
		metric.WithUnit("{retry}"),
	)

	m.ResolutionsDiscardedTotal, _ = meter.Int64Counter(
		"tenantgate.tenant.discarded.total",
		metric.WithDescription("Total number of resolution results dropped after invalidation"),
		metric.WithUnit("{resolution}"),
	)

	m.InvalidationsTotal, _ = meter.Int64Counter(
		"tenantgate.tenant.invalidations.total",
		metric.WithDescription("Total number of tenant identity invalidations"),
		metric.WithUnit("{invalidation}"),
	)

	m.LimitChecksTotal, _ = meter.Int64Counter(
		"tenantgate.limits.checks.total",
		metric.WithDescription("Total number of plan limit checks by resource and outcome"),
		metric.WithUnit("{check}"),
	)

	m.ExpiryWriteBacksTotal, _ = meter.Int64Counter(
		"tenantgate.limits.expiry_writebacks.total",
		metric.WithDescription("Total number of lapsed trial write-backs attempted"),
		metric.WithUnit("{writeback}"),
	)

	m.ExpiryWriteBackErrorTotal, _ = meter.Int64Counter(
		"tenantgate.limits.expiry_writebacks.errors.total",
		metric.WithDescription("Total number of lapsed trial write-backs that failed"),
		metric.WithUnit("{error}"),
	)

	m.SessionEventsTotal, _ = meter.Int64Counter(
		"tenantgate.events.session.total",
		metric.WithDescription("Total number of identity provider session events received"),
		metric.WithUnit("{event}"),
	)

	m.SessionEventErrorsTotal, _ = meter.Int64Counter(
		"tenantgate.events.session.errors.total",
		metric.WithDescription("Total number of session events that could not be decoded or applied"),
		metric.WithUnit("{error}"),
	)

	return m
}
