// Package metrics holds the Prometheus collectors scraped from /metrics and
// the OTLP billing counters pushed to the collector.
package metrics

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pushInterval = 10 * time.Second

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	// ExporterProtocol is "grpc" or "http".
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// NewProvider installs the global meter provider. It is a no-op provider
// unless OTLP export is enabled.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(pushInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	log.Info("metric export enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func newExporter(cfg Config) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	if cfg.ExporterProtocol == "http" {
		var opts []otlpmetrichttp.Option
		if cfg.ExporterEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.ExporterEndpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if cfg.ExporterEndpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.ExporterEndpoint))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

const (
	counterInvoicesGenerated  = "tenantgate_billing_invoices_generated_total"
	counterPaymentsSettled    = "tenantgate_billing_payments_settled_total"
	counterInvoicesOverdue    = "tenantgate_billing_invoices_overdue_total"
	counterTenantsDeactivated = "tenantgate_billing_tenants_deactivated_total"
)

var billingCounters = map[string]string{
	counterInvoicesGenerated:  "Monthly invoices generated.",
	counterPaymentsSettled:    "Invoices settled through a payment gateway.",
	counterInvoicesOverdue:    "Pending invoices moved to overdue.",
	counterTenantsDeactivated: "Projects deactivated for non-payment.",
}

// Metrics are the billing lifecycle counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tenantgate"
	}
	meter := provider.Meter(name + "/billing")

	m := &Metrics{counters: make(map[string]metric.Int64Counter, len(billingCounters))}
	for counterName, help := range billingCounters {
		counter, err := meter.Int64Counter(counterName, metric.WithDescription(help))
		if err != nil {
			return nil, err
		}
		m.counters[counterName] = counter
	}
	return m, nil
}

func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) add(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	if m == nil || n <= 0 {
		return
	}
	m.counters[name].Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, currency string) {
	m.add(ctx, counterInvoicesGenerated, 1, attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))))
}

func (m *Metrics) RecordPaymentSettled(ctx context.Context, provider, method string) {
	m.add(ctx, counterPaymentsSettled, 1,
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("method", strings.TrimSpace(method)),
	)
}

func (m *Metrics) RecordOverdueSweep(ctx context.Context, invoices, tenants int) {
	m.add(ctx, counterInvoicesOverdue, int64(invoices))
	m.add(ctx, counterTenantsDeactivated, int64(tenants))
}

// allowedLabelKeys keeps project and invoice ids out of metric labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"currency": {},
	"provider": {},
	"method":   {},
	"outcome":  {},
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
