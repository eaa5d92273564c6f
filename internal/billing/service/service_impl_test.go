package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantgate/internal/billing/domain"
	"github.com/smallbiznis/tenantgate/internal/billing/event"
	"github.com/smallbiznis/tenantgate/internal/billing/repository"
	catalogdomain "github.com/smallbiznis/tenantgate/internal/catalog/domain"
	"github.com/smallbiznis/tenantgate/internal/clock"
	"github.com/smallbiznis/tenantgate/internal/config"
	paymentdomain "github.com/smallbiznis/tenantgate/internal/payment/domain"
	paymentmock "github.com/smallbiznis/tenantgate/internal/payment/mock"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"github.com/smallbiznis/tenantgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeUsage struct {
	mu     sync.Mutex
	counts map[snowflake.ID]int64
	errs   map[snowflake.ID]error
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{counts: map[snowflake.ID]int64{}, errs: map[snowflake.ID]error{}}
}

func (f *fakeUsage) CountActiveUsers(_ context.Context, projectID snowflake.ID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[projectID]; err != nil {
		return 0, err
	}
	return f.counts[projectID], nil
}

func (f *fakeUsage) set(projectID snowflake.ID, n int64) {
	f.mu.Lock()
	f.counts[projectID] = n
	f.mu.Unlock()
}

type harness struct {
	db    *gorm.DB
	svc   *Service
	clock *clock.FakeClock
	usage *fakeUsage
	node  *snowflake.Node
}

func newHarness(t *testing.T, gateway paymentdomain.Gateway) *harness {
	t.Helper()
	conn := testutil.ControlPlaneDB(t)
	node := testutil.Node(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	usage := newFakeUsage()
	log := zap.NewNop()

	svc := NewService(Params{
		DB:    conn,
		Log:   log,
		Repo:  repository.NewRepository(conn),
		GenID: node,
		Clock: fc,
		Config: config.Config{Billing: config.BillingRuntimeConfig{
			TenantTimeout: 5 * time.Second,
			Concurrency:   4,
			Currency:      "USD",
			Location:      "UTC",
		}},
		Usage:     usage,
		Gateway:   gateway,
		Publisher: event.NewOutboxPublisher(conn, node, log),
	}).(*Service)

	return &harness{db: conn, svc: svc, clock: fc, usage: usage, node: node}
}

func (h *harness) project(t *testing.T, active bool) snowflake.ID {
	t.Helper()
	id := h.node.Generate()
	now := h.clock.Now()
	require.NoError(t, h.db.Create(&tenantdomain.Project{
		ID:        id,
		Name:      "Acme " + id.String(),
		Slug:      "acme-" + id.String(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
	if !active {
		require.NoError(t, h.db.Model(&tenantdomain.Project{}).Where("id = ?", id).Update("is_active", false).Error)
	}
	return id
}

func (h *harness) subscribe(t *testing.T, projectID snowflake.ID, userPrice string) *domain.Subscription {
	t.Helper()
	sub, err := h.svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProjectID:   projectID,
		OwnerUserID: "owner-1",
		UserPrice:   decimal.RequireFromString(userPrice),
	})
	require.NoError(t, err)
	return sub
}

func (h *harness) projectActive(t *testing.T, id snowflake.ID) bool {
	t.Helper()
	var p tenantdomain.Project
	require.NoError(t, h.db.First(&p, "id = ?", id).Error)
	return p.IsActive
}

func (h *harness) events(t *testing.T, projectID snowflake.ID, topic string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&event.BillingEvent{}).
		Where("project_id = ? AND event_type = ?", projectID, topic).Count(&n).Error)
	return n
}

func TestCreateSubscriptionSetsMonthEnd(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)

	sub := h.subscribe(t, p, "10")
	assert.True(t, sub.NextBilling.Equal(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)))
	assert.Nil(t, sub.LastBilled)
	assert.True(t, sub.IsActive)
	assert.Equal(t, int64(1), h.events(t, p, event.SubscriptionCreatedTopic))
}

func TestCreateSubscriptionRejectsDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)
	h.subscribe(t, p, "10")

	_, err := h.svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProjectID: p,
		UserPrice: decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateSubscription)
}

func TestCreateSubscriptionValidates(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)

	_, err := h.svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProjectID: p,
		UserPrice: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = h.svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProjectID: h.node.Generate(),
		UserPrice: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidProject)
}

func TestCalculateAndGenerateInvoice(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)
	h.subscribe(t, p, "10")
	h.usage.set(p, 3)

	calc, err := h.svc.CalculateBilling(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), calc.UserCount)
	assert.True(t, calc.ApplicationAmount.IsZero())
	assert.Equal(t, "30.00", calc.TotalAmount.StringFixed(2))
	assert.True(t, calc.PeriodStart.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, calc.PeriodEnd.Equal(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)))

	invoice, err := h.svc.GenerateMonthlyInvoice(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "30.00", invoice.Amount.StringFixed(2))
	assert.Equal(t, domain.InvoiceStatusPending, invoice.Status)
	assert.Regexp(t, `^INV-[0-9A-Z]{26}$`, invoice.InvoiceNumber)
	assert.True(t, invoice.DueDate.Equal(time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)))
	assert.True(t, invoice.Amount.Equal(invoice.UserAmount.Add(invoice.ApplicationAmount)))

	sub, err := h.svc.repo.FindActiveSubscription(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, sub.LastBilled)
	assert.True(t, sub.NextBilling.Equal(time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, int64(1), h.events(t, p, event.InvoiceGeneratedTopic))
}

func TestApplicationAmountPrefersCustomPrice(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)
	h.subscribe(t, p, "2.50")
	h.usage.set(p, 4)

	now := h.clock.Now()
	crm := catalogdomain.Application{ID: h.node.Generate(), Name: "CRM", Slug: "crm", Price: decimal.RequireFromString("20"), Listed: true, IsActive: true, CreatedAt: now, UpdatedAt: now}
	wiki := catalogdomain.Application{ID: h.node.Generate(), Name: "Wiki", Slug: "wiki", Price: decimal.RequireFromString("7.25"), Listed: true, IsActive: true, CreatedAt: now, UpdatedAt: now}
	chat := catalogdomain.Application{ID: h.node.Generate(), Name: "Chat", Slug: "chat", Price: decimal.RequireFromString("99"), Listed: true, IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, h.db.Create([]*catalogdomain.Application{&crm, &wiki, &chat}).Error)

	custom := decimal.RequireFromString("15")
	require.NoError(t, h.db.Omit("Application").Create([]*catalogdomain.TenantApplication{
		{ID: h.node.Generate(), ProjectID: p, ApplicationID: crm.ID, CustomPrice: &custom, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: h.node.Generate(), ProjectID: p, ApplicationID: wiki.ID, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: h.node.Generate(), ProjectID: p, ApplicationID: chat.ID, IsActive: true, CreatedAt: now, UpdatedAt: now},
	}).Error)
	require.NoError(t, h.db.Model(&catalogdomain.TenantApplication{}).
		Where("application_id = ?", chat.ID).Update("is_active", false).Error)

	calc, err := h.svc.CalculateBilling(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calc.ApplicationCount)
	assert.Equal(t, "22.25", calc.ApplicationAmount.StringFixed(2))
	assert.Equal(t, "10.00", calc.UserAmount.StringFixed(2))
	assert.Equal(t, "32.25", calc.TotalAmount.StringFixed(2))
}

func TestStaleSubscriptionCannotBillTwice(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)
	sub := h.subscribe(t, p, "1")
	h.usage.set(p, 1)

	stale := *sub
	_, err := h.svc.generate(context.Background(), sub)
	require.NoError(t, err)

	_, err = h.svc.generate(context.Background(), &stale)
	assert.ErrorIs(t, err, domain.ErrCycleAlreadyAdvanced)

	var count int64
	require.NoError(t, h.db.Model(&domain.Invoice{}).Where("project_id = ?", p).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcessPaymentSettlesAndReactivates(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := paymentmock.NewMockGateway(ctrl)
	h := newHarness(t, gw)

	p := h.project(t, true)
	h.subscribe(t, p, "10")
	h.usage.set(p, 3)
	invoice, err := h.svc.GenerateMonthlyInvoice(context.Background(), p)
	require.NoError(t, err)

	h.clock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	swept, err := h.svc.CheckOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.False(t, h.projectActive(t, p))

	gw.EXPECT().
		Settle(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req paymentdomain.SettlementRequest) (*paymentdomain.Settlement, error) {
			assert.Equal(t, invoice.ID, req.InvoiceID)
			assert.Equal(t, "30.00", req.Amount.StringFixed(2))
			assert.Equal(t, "invoice-"+invoice.ID.String(), req.IdempotencyKey)
			return &paymentdomain.Settlement{Provider: "stripe", Reference: "pi_1", SettledAt: h.clock.Now()}, nil
		})

	paid, err := h.svc.ProcessPayment(context.Background(), invoice.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, "pi_1", paid.PaymentReference)
	assert.True(t, h.projectActive(t, p))
	assert.Equal(t, int64(1), h.events(t, p, event.ProjectReactivatedTopic))

	firstPaidAt, firstAmount := *paid.PaidAt, paid.Amount

	h.clock.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	_, err = h.svc.ProcessPayment(context.Background(), invoice.ID, "card")
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

	reloaded, err := h.svc.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PaidAt)
	assert.True(t, firstPaidAt.Equal(*reloaded.PaidAt), "paid_at moved from %s to %s", firstPaidAt, *reloaded.PaidAt)
	assert.True(t, firstAmount.Equal(reloaded.Amount), "amount moved from %s to %s", firstAmount, reloaded.Amount)
	assert.Equal(t, "pi_1", reloaded.PaymentReference)
}

func TestProcessPaymentFailureLeavesInvoice(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := paymentmock.NewMockGateway(ctrl)
	h := newHarness(t, gw)

	p := h.project(t, true)
	h.subscribe(t, p, "10")
	h.usage.set(p, 1)
	invoice, err := h.svc.GenerateMonthlyInvoice(context.Background(), p)
	require.NoError(t, err)

	gw.EXPECT().Settle(gomock.Any(), gomock.Any()).Return(nil, paymentdomain.ErrDeclined)

	_, err = h.svc.ProcessPayment(context.Background(), invoice.ID, "card")
	assert.ErrorIs(t, err, domain.ErrPaymentFailed)

	got, err := h.svc.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPending, got.Status)
	assert.Nil(t, got.PaidAt)
}

func TestProcessPaymentZeroAmountSkipsGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := paymentmock.NewMockGateway(ctrl)
	h := newHarness(t, gw)

	p := h.project(t, true)
	h.subscribe(t, p, "10")
	invoice, err := h.svc.GenerateMonthlyInvoice(context.Background(), p)
	require.NoError(t, err)
	require.True(t, invoice.Amount.IsZero())

	paid, err := h.svc.ProcessPayment(context.Background(), invoice.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, unspecifiedMethod, paid.PaymentMethod)
}

func TestProcessPaymentUnknownInvoice(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.ProcessPayment(context.Background(), h.node.Generate(), "card")
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestOverdueSweepOnlyTouchesPastDue(t *testing.T) {
	h := newHarness(t, nil)
	late := h.project(t, true)
	fresh := h.project(t, true)
	h.subscribe(t, late, "1")
	h.usage.set(late, 1)
	_, err := h.svc.GenerateMonthlyInvoice(context.Background(), late)
	require.NoError(t, err)

	h.clock.Set(time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC))
	h.subscribe(t, fresh, "1")
	h.usage.set(fresh, 1)
	_, err = h.svc.GenerateMonthlyInvoice(context.Background(), fresh)
	require.NoError(t, err)

	// late is due Feb 28; fresh is due Mar 31.
	n, err := h.svc.CheckOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Set(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	n, err = h.svc.CheckOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, h.projectActive(t, late))
	assert.True(t, h.projectActive(t, fresh))

	n, err = h.svc.CheckOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	var statuses []string
	require.NoError(t, h.db.Model(&domain.Invoice{}).Where("project_id = ?", late).Pluck("status", &statuses).Error)
	assert.Equal(t, []string{string(domain.InvoiceStatusOverdue)}, statuses)
}

func TestProcessMonthlyBillingIsolatesFailures(t *testing.T) {
	h := newHarness(t, nil)
	var projects []snowflake.ID
	for i := 0; i < 5; i++ {
		p := h.project(t, true)
		h.subscribe(t, p, "10")
		h.usage.set(p, int64(i))
		projects = append(projects, p)
	}
	h.usage.errs[projects[2]] = errors.New("tenant database unreachable")

	h.clock.Set(time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC))
	result, err := h.svc.ProcessMonthlyBilling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Errors)

	var count int64
	require.NoError(t, h.db.Model(&domain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)

	var invoices []domain.Invoice
	require.NoError(t, h.db.Find(&invoices).Error)
	for _, inv := range invoices {
		assert.True(t, inv.Amount.Equal(inv.UserAmount.Add(inv.ApplicationAmount)))
	}

	// Same day again: the four billed cycles moved on, the failed one retries.
	delete(h.usage.errs, projects[2])
	result, err = h.svc.ProcessMonthlyBilling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Errors)
}

func TestProcessMonthlyBillingSkipsFutureCycles(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)
	h.subscribe(t, p, "10")

	result, err := h.svc.ProcessMonthlyBilling(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestGetBillingStatusReportsUsageErrors(t *testing.T) {
	h := newHarness(t, nil)
	p := h.project(t, true)
	h.subscribe(t, p, "10")
	h.usage.errs[p] = errors.New("dial tcp: refused")

	status, err := h.svc.GetBillingStatus(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, status.ProjectActive)
	require.NotNil(t, status.Subscription)
	assert.Nil(t, status.Usage)
	assert.Contains(t, status.UsageError, "refused")
	assert.Empty(t, status.Invoices)
}
