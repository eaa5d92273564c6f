package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("project_id", "123"),
		attribute.String("currency", "USD"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "project_id" {
			t.Fatalf("expected project_id to be dropped")
		}
	}
}

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSchedulerMetricsUseInjectedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "tenantgate", Environment: "test"})

	m.IncJobSkipped("monthly_billing", SchedulerSkipReasonOverlap)
	m.AddTenants("monthly_billing", TenantOutcomeInvoiced, 3)
	m.AddTenants("monthly_billing", TenantOutcomeInvoiced, 0)

	if got := testutil.ToFloat64(m.jobSkipped.WithLabelValues("monthly_billing", SchedulerSkipReasonOverlap)); got != 1 {
		t.Fatalf("expected 1 skipped run, got %v", got)
	}
	if got := testutil.ToFloat64(m.tenantsHandled.WithLabelValues("monthly_billing", TenantOutcomeInvoiced)); got != 3 {
		t.Fatalf("expected 3 invoiced tenants, got %v", got)
	}

	// A second instance on a fresh registry must not collide.
	_ = NewSchedulerMetrics(prometheus.NewRegistry(), Config{})
}

func TestTenantMetricsObserveResolve(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewTenantMetrics(registry, Config{})

	m.ObserveResolve(ResolveOutcomeInactive, 5*time.Millisecond)
	m.SetRegistryHandles("database", 2)

	if got := testutil.ToFloat64(m.resolutions.WithLabelValues(ResolveOutcomeInactive)); got != 1 {
		t.Fatalf("expected 1 inactive resolution, got %v", got)
	}
	if got := testutil.ToFloat64(m.registryHandles.WithLabelValues("database")); got != 2 {
		t.Fatalf("expected 2 handles, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var s *SchedulerMetrics
	s.IncJobRun("x")
	s.MarkSuccess("x", time.Now())

	var m *Metrics
	m.RecordInvoiceGenerated(context.Background(), "USD")

	NewNoop().RecordOverdueSweep(context.Background(), 2, 1)
}
