package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResolveOutcomeResolved    = "resolved"
	ResolveOutcomeNotFound    = "not_found"
	ResolveOutcomeInactive    = "inactive"
	ResolveOutcomeCrypto      = "crypto_error"
	ResolveOutcomeUnavailable = "dependency_unavailable"
)

// TenantMetrics tracks resolution outcomes and client registry activity.
type TenantMetrics struct {
	resolutions     *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	registryHandles *prometheus.GaugeVec
	registryBuilds  *prometheus.CounterVec
}

func NewTenantMetrics(registerer prometheus.Registerer, cfg Config) *TenantMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	m := &TenantMetrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tenantgate_resolver_resolutions_total",
			Help:        "Tenant resolutions by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "tenantgate_resolver_duration_seconds",
			Help:        "Tenant resolution latency including client construction.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}),
		registryHandles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tenantgate_client_registry_handles",
			Help:        "Live tenant client handles held by the registry.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		registryBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tenantgate_client_registry_builds_total",
			Help:        "Tenant client constructions by kind and outcome.",
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),
	}

	registerer.MustRegister(m.resolutions, m.resolveDuration, m.registryHandles, m.registryBuilds)
	return m
}

func (m *TenantMetrics) ObserveResolve(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolveDuration.Observe(duration.Seconds())
}

func (m *TenantMetrics) SetRegistryHandles(kind string, count int) {
	if m == nil {
		return
	}
	m.registryHandles.WithLabelValues(kind).Set(float64(count))
}

func (m *TenantMetrics) IncRegistryBuild(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.registryBuilds.WithLabelValues(kind, outcome).Inc()
}
