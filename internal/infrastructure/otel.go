package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// ServiceName identifies this service in exported telemetry
	ServiceName = "stock-feed-sync"
	// ServiceVersion is the reported service version
	ServiceVersion = "1.0.0"
	// MeterName is the instrumentation scope for this module's metrics
	MeterName = "stocksync"
)

// Telemetry holds the metric provider and the instruments the engine and
// scheduler record against.
type Telemetry struct {
	MeterProvider  *sdkmetric.MeterProvider
	Meter          metric.Meter
	PrometheusHTTP http.Handler

	SyncRuns        metric.Int64Counter
	ProductsUpdated metric.Int64Counter
	ProductsMissing metric.Int64Counter
	SyncDuration    metric.Float64Histogram
	WatchdogRepairs metric.Int64Counter
	LicenseChecks   metric.Int64Counter
}

// InitializeTelemetry sets up the OTel meter provider with a Prometheus
// exporter and creates the service instruments.
func InitializeTelemetry(logger *slog.Logger) (*Telemetry, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter(MeterName)

	t := &Telemetry{
		MeterProvider:  provider,
		Meter:          meter,
		PrometheusHTTP: promhttp.Handler(),
	}

	if t.SyncRuns, err = meter.Int64Counter("sync_runs_total",
		metric.WithDescription("Reconciliation runs by trigger and outcome")); err != nil {
		return nil, err
	}
	if t.ProductsUpdated, err = meter.Int64Counter("sync_products_updated_total",
		metric.WithDescription("Products whose stock quantity was written")); err != nil {
		return nil, err
	}
	if t.ProductsMissing, err = meter.Int64Counter("sync_products_missing_total",
		metric.WithDescription("Missing-SKU policy applications by action")); err != nil {
		return nil, err
	}
	if t.SyncDuration, err = meter.Float64Histogram("sync_run_duration_seconds",
		metric.WithDescription("Wall-clock duration of reconciliation runs")); err != nil {
		return nil, err
	}
	if t.WatchdogRepairs, err = meter.Int64Counter("watchdog_repairs_total",
		metric.WithDescription("Watchdog trigger repairs by reason")); err != nil {
		return nil, err
	}
	if t.LicenseChecks, err = meter.Int64Counter("license_checks_total",
		metric.WithDescription("License verifications by result")); err != nil {
		return nil, err
	}

	logger.Info("telemetry initialized",
		slog.String("service", ServiceName),
		slog.String("exporter", "prometheus"))

	return t, nil
}

// RecordSyncRun records one reconciliation run outcome
func (t *Telemetry) RecordSyncRun(ctx context.Context, trigger, status string, durationSeconds float64) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	)
	t.SyncRuns.Add(ctx, 1, attrs)
	t.SyncDuration.Record(ctx, durationSeconds, attrs)
}

// RecordMissingAction records one missing-SKU policy application
func (t *Telemetry) RecordMissingAction(ctx context.Context, action string, count int64) {
	if t == nil || count == 0 {
		return
	}
	t.ProductsMissing.Add(ctx, count, metric.WithAttributes(attribute.String("action", action)))
}

// Shutdown flushes and stops the meter provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.MeterProvider == nil {
		return nil
	}
	return t.MeterProvider.Shutdown(ctx)
}
