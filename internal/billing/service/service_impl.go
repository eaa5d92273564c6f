package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantgate/internal/billing/domain"
	"github.com/smallbiznis/tenantgate/internal/billing/event"
	"github.com/smallbiznis/tenantgate/internal/clock"
	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tenantgate/internal/payment/domain"
	"github.com/smallbiznis/tenantgate/internal/tenantdb"
	"github.com/smallbiznis/tenantgate/pkg/db"
	"github.com/smallbiznis/tenantgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	statusInvoiceLimit = 12
	unspecifiedMethod  = "unspecified"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Schedule  *config.BillingConfigHolder `optional:"true"`
	Usage     tenantdb.UsageCounter
	Gateway   paymentdomain.Gateway
	Publisher event.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	schedule  *config.BillingConfigHolder
	usage     tenantdb.UsageCounter
	gateway   paymentdomain.Gateway
	publisher event.Publisher
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billing.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		clock:     c,
		cfg:       p.Config,
		schedule:  p.Schedule,
		usage:     p.Usage,
		gateway:   p.Gateway,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if req.ProjectID == 0 {
		return nil, domain.ErrInvalidProject
	}
	if req.UserPrice.IsNegative() || req.ApplicationPrice.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}

	now := s.clock.Now()
	sub := domain.Subscription{
		ID:               s.genID.Generate(),
		ProjectID:        req.ProjectID,
		OwnerUserID:      strings.TrimSpace(req.OwnerUserID),
		UserPrice:        req.UserPrice,
		ApplicationPrice: req.ApplicationPrice,
		NextBilling:      domain.EndOfMonth(now.In(s.location())).UTC(),
		IsActive:         true,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.ProjectActive(ctx, req.ProjectID); err != nil {
			return err
		}

		existing, err := repo.FindActiveSubscription(ctx, req.ProjectID)
		switch {
		case err == nil && existing != nil:
			return domain.ErrDuplicateSubscription
		case err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound):
			return err
		}

		if err := repo.CreateSubscription(ctx, &sub); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSubscription
			}
			return err
		}

		return s.publisher.Publish(ctx, tx, event.Event{
			Type:      event.SubscriptionCreatedTopic,
			ProjectID: sub.ProjectID,
			Payload: map[string]any{
				"subscription_id": sub.ID.String(),
				"next_billing":    sub.NextBilling,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (s *Service) CalculateBilling(ctx context.Context, projectID snowflake.ID) (*domain.BillingCalculation, error) {
	sub, err := s.repo.FindActiveSubscription(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.calculate(ctx, sub)
}

func (s *Service) calculate(ctx context.Context, sub *domain.Subscription) (*domain.BillingCalculation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.tenantTimeout())
	defer cancel()

	userCount, err := s.usage.CountActiveUsers(ctx, sub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("count tenant users: %w", err)
	}

	appCount, appAmount, err := s.repo.SumActiveApplications(ctx, sub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("sum tenant applications: %w", err)
	}

	userAmount := sub.UserPrice.Mul(decimal.NewFromInt(userCount))
	periodEnd := sub.NextBilling.In(s.location())

	return &domain.BillingCalculation{
		ProjectID:         sub.ProjectID,
		UserCount:         userCount,
		ApplicationCount:  appCount,
		UserAmount:        userAmount,
		ApplicationAmount: appAmount,
		TotalAmount:       userAmount.Add(appAmount),
		PeriodStart:       domain.StartOfMonth(periodEnd).UTC(),
		PeriodEnd:         periodEnd.UTC(),
	}, nil
}

func (s *Service) GenerateMonthlyInvoice(ctx context.Context, projectID snowflake.ID) (*domain.Invoice, error) {
	sub, err := s.repo.FindActiveSubscription(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, sub)
}

// generate writes the invoice and advances the subscription in one
// transaction. The advance is conditional on the cycle read here, so two
// concurrent runs cannot both bill the same month.
func (s *Service) generate(ctx context.Context, sub *domain.Subscription) (*domain.Invoice, error) {
	calc, err := s.calculate(ctx, sub)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	loc := s.location()
	invoice := domain.Invoice{
		ID:                s.genID.Generate(),
		InvoiceNumber:     "INV-" + ulid.Make().String(),
		ProjectID:         sub.ProjectID,
		SubscriptionID:    sub.ID,
		Amount:            calc.TotalAmount,
		UserCount:         calc.UserCount,
		UserAmount:        calc.UserAmount,
		ApplicationCount:  calc.ApplicationCount,
		ApplicationAmount: calc.ApplicationAmount,
		Currency:          s.currency(),
		PeriodStart:       calc.PeriodStart,
		PeriodEnd:         calc.PeriodEnd,
		DueDate:           domain.NextMonthEnd(now.In(loc)).UTC(),
		Status:            domain.InvoiceStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	nextBilling := domain.NextMonthEnd(sub.NextBilling.In(loc)).UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateInvoice(ctx, &invoice); err != nil {
			return err
		}
		advanced, err := repo.AdvanceSubscription(ctx, sub.ID, sub.NextBilling, now, nextBilling)
		if err != nil {
			return err
		}
		if !advanced {
			return domain.ErrCycleAlreadyAdvanced
		}
		invoiceID := invoice.ID
		return s.publisher.Publish(ctx, tx, event.Event{
			Type:      event.InvoiceGeneratedTopic,
			ProjectID: invoice.ProjectID,
			InvoiceID: &invoiceID,
			Payload: map[string]any{
				"invoice_number": invoice.InvoiceNumber,
				"amount":         invoice.Amount.StringFixed(2),
				"currency":       invoice.Currency,
				"due_date":       invoice.DueDate,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceGenerated(ctx, invoice.Currency)
	s.log.Info("invoice generated",
		zap.String("project_id", invoice.ProjectID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("amount", invoice.Amount.StringFixed(2)),
	)
	return &invoice, nil
}

func (s *Service) ProcessPayment(ctx context.Context, invoiceID snowflake.ID, method string) (*domain.Invoice, error) {
	invoice, err := s.repo.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == domain.InvoiceStatusPaid {
		return nil, domain.ErrAlreadyPaid
	}

	method = strings.TrimSpace(method)
	if method == "" {
		method = unspecifiedMethod
	}

	settlement, err := s.settle(ctx, invoice, method)
	if err != nil {
		s.log.Warn("payment settlement failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updated, err := repo.MarkInvoicePaid(ctx, invoice.ID, domain.PaymentUpdate{
			PaidAt:    settlement.SettledAt.UTC(),
			Method:    method,
			Reference: settlement.Reference,
		})
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrAlreadyPaid
		}

		wasActive, err := repo.ProjectActive(ctx, invoice.ProjectID)
		if err != nil {
			return err
		}
		if _, err := repo.SetProjectsActive(ctx, []snowflake.ID{invoice.ProjectID}, true); err != nil {
			return err
		}

		id := invoice.ID
		if err := s.publisher.Publish(ctx, tx, event.Event{
			Type:      event.InvoicePaidTopic,
			ProjectID: invoice.ProjectID,
			InvoiceID: &id,
			Payload: map[string]any{
				"invoice_number": invoice.InvoiceNumber,
				"provider":       settlement.Provider,
				"reference":      settlement.Reference,
				"method":         method,
				"previous":       string(invoice.Status),
			},
		}); err != nil {
			return err
		}
		if wasActive {
			return nil
		}
		return s.publisher.Publish(ctx, tx, event.Event{
			Type:      event.ProjectReactivatedTopic,
			ProjectID: invoice.ProjectID,
			InvoiceID: &id,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentSettled(ctx, settlement.Provider, method)
	return s.repo.FindInvoice(ctx, invoice.ID)
}

func (s *Service) settle(ctx context.Context, invoice *domain.Invoice, method string) (*paymentdomain.Settlement, error) {
	if invoice.Amount.IsZero() {
		return &paymentdomain.Settlement{
			Provider:  "none",
			Reference: "zero_amount",
			SettledAt: s.clock.Now(),
		}, nil
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrProviderNotFound
	}
	return s.gateway.Settle(ctx, paymentdomain.SettlementRequest{
		InvoiceID:      invoice.ID,
		InvoiceNumber:  invoice.InvoiceNumber,
		ProjectID:      invoice.ProjectID,
		Amount:         invoice.Amount,
		Currency:       invoice.Currency,
		Method:         method,
		IdempotencyKey: "invoice-" + invoice.ID.String(),
	})
}

// CheckOverdueInvoices flips every past-due PENDING invoice to OVERDUE and
// deactivates the owning projects. The sweep is all or nothing.
func (s *Service) CheckOverdueInvoices(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	var swept, deactivated int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		candidates, err := repo.ListOverdueCandidates(ctx, now)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(candidates))
		seen := make(map[snowflake.ID]struct{})
		projects := make([]snowflake.ID, 0)
		for _, inv := range candidates {
			ids = append(ids, inv.ID)
			if _, ok := seen[inv.ProjectID]; !ok {
				seen[inv.ProjectID] = struct{}{}
				projects = append(projects, inv.ProjectID)
			}
		}

		n, err := repo.MarkInvoicesOverdue(ctx, ids, now)
		if err != nil {
			return err
		}
		changed, err := repo.SetProjectsActive(ctx, projects, false)
		if err != nil {
			return err
		}

		for _, inv := range candidates {
			id := inv.ID
			if err := s.publisher.Publish(ctx, tx, event.Event{
				Type:      event.InvoiceOverdueTopic,
				ProjectID: inv.ProjectID,
				InvoiceID: &id,
				Payload: map[string]any{
					"invoice_number": inv.InvoiceNumber,
					"due_date":       inv.DueDate,
				},
			}); err != nil {
				return err
			}
		}
		for _, projectID := range projects {
			if err := s.publisher.Publish(ctx, tx, event.Event{
				Type:      event.ProjectDeactivatedTopic,
				ProjectID: projectID,
				Payload:   map[string]any{"reason": "invoice_overdue"},
			}); err != nil {
				return err
			}
		}

		swept = int(n)
		deactivated = int(changed)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		s.log.Info("overdue invoices swept",
			zap.Int("invoices", swept),
			zap.Int("projects_deactivated", deactivated),
		)
	}
	s.metrics.RecordOverdueSweep(ctx, swept, deactivated)
	return swept, nil
}

// ProcessMonthlyBilling invoices every active subscription due by the end of
// today. Subscriptions already billed for the period have next_billing in
// the future and are skipped, so a forced rerun does not double-bill (see
// DESIGN.md, Open Question 3). A failure for one tenant is logged and
// counted without stopping the run.
func (s *Service) ProcessMonthlyBilling(ctx context.Context) (*domain.BillingRunResult, error) {
	start := s.clock.Now()
	cutoff := domain.EndOfDay(start.In(s.location())).UTC()

	subs, err := s.repo.ListDueSubscriptions(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}

	var processed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency())

	for i := range subs {
		sub := subs[i]
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			tenantCtx, cancel := context.WithTimeout(ctx, s.tenantTimeout())
			defer cancel()

			if _, err := s.generate(tenantCtx, &sub); err != nil {
				failed.Add(1)
				s.log.Error("tenant billing failed",
					zap.String("project_id", sub.ProjectID.String()),
					zap.String("subscription_id", sub.ID.String()),
					zap.Error(err),
				)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result := &domain.BillingRunResult{
		Processed: int(processed.Load()),
		Errors:    int(failed.Load()),
	}

	overdue, err := s.CheckOverdueInvoices(ctx)
	result.Overdue = overdue
	result.Duration = s.clock.Now().Sub(start)
	if err != nil {
		return result, fmt.Errorf("overdue sweep: %w", err)
	}
	if cerr := ctx.Err(); cerr != nil {
		return result, cerr
	}

	s.log.Info("monthly billing complete",
		zap.Int("due", len(subs)),
		zap.Int("processed", result.Processed),
		zap.Int("errors", result.Errors),
		zap.Int("overdue", result.Overdue),
	)
	return result, nil
}

func (s *Service) GetBillingStatus(ctx context.Context, projectID snowflake.ID) (*domain.BillingStatus, error) {
	active, err := s.repo.ProjectActive(ctx, projectID)
	if err != nil {
		return nil, err
	}

	status := &domain.BillingStatus{
		ProjectID:     projectID,
		ProjectActive: active,
		Invoices:      []domain.Invoice{},
	}

	sub, err := s.repo.FindActiveSubscription(ctx, projectID)
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
	case err != nil:
		return nil, err
	default:
		status.Subscription = sub
	}

	invoices, _, err := s.repo.ListInvoices(ctx, projectID, pagination.Pagination{PageSize: statusInvoiceLimit})
	if err != nil {
		return nil, err
	}
	status.Invoices = invoices

	if sub != nil {
		usage, err := s.calculate(ctx, sub)
		if err != nil {
			status.UsageError = err.Error()
		} else {
			status.Usage = usage
		}
	}
	return status, nil
}

func (s *Service) ListInvoices(ctx context.Context, projectID snowflake.ID, page pagination.Pagination) ([]domain.Invoice, pagination.PageInfo, error) {
	return s.repo.ListInvoices(ctx, projectID, page)
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID snowflake.ID) (*domain.Invoice, error) {
	return s.repo.FindInvoice(ctx, invoiceID)
}

func (s *Service) location() *time.Location {
	name := s.cfg.Billing.Location
	if s.schedule != nil {
		name = s.schedule.Get().Location
	}
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Service) concurrency() int {
	n := s.cfg.Billing.Concurrency
	if s.schedule != nil {
		n = s.schedule.Get().Concurrency
	}
	if n <= 0 {
		return 1
	}
	return n
}

func (s *Service) tenantTimeout() time.Duration {
	if s.cfg.Billing.TenantTimeout > 0 {
		return s.cfg.Billing.TenantTimeout
	}
	return 30 * time.Second
}

func (s *Service) currency() string {
	if c := strings.TrimSpace(s.cfg.Billing.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return "USD"
}
