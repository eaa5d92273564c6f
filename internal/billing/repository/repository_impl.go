package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantgate/internal/billing/domain"
	"github.com/smallbiznis/tenantgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindActiveSubscription(ctx context.Context, projectID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Order("created_at DESC").
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListDueSubscriptions returns active subscriptions whose billing date is at
// or before cutoff.
func (r *repository) ListDueSubscriptions(ctx context.Context, cutoff time.Time) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND next_billing <= ?", true, cutoff).
		Order("next_billing ASC, id ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// AdvanceSubscription moves the billing cycle forward only if it is still at
// expectedNext. It reports false when another run advanced it first.
func (r *repository) AdvanceSubscription(ctx context.Context, id snowflake.ID, expectedNext, lastBilled, nextBilling time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Subscription{}).
		Where("id = ? AND next_billing = ?", id, expectedNext).
		Updates(map[string]any{
			"last_billed":  lastBilled,
			"next_billing": nextBilling,
			"updated_at":   lastBilled,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListInvoices(ctx context.Context, projectID snowflake.ID, page pagination.Pagination) ([]domain.Invoice, pagination.PageInfo, error) {
	limit := page.Limit()
	query := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var invoices []domain.Invoice
	if err := query.Find(&invoices).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}

	return pagination.Trim(invoices, limit, func(inv domain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: inv.ID.Int64(), CreatedAt: inv.CreatedAt}
	})
}

// MarkInvoicePaid settles an unpaid invoice. It reports false when the
// invoice was already paid, so concurrent settlements cannot both win.
func (r *repository) MarkInvoicePaid(ctx context.Context, id snowflake.ID, update domain.PaymentUpdate) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ? AND status <> ?", id, domain.InvoiceStatusPaid).
		Updates(map[string]any{
			"status":            domain.InvoiceStatusPaid,
			"paid_at":           update.PaidAt,
			"payment_method":    update.Method,
			"payment_reference": update.Reference,
			"updated_at":        update.PaidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListOverdueCandidates(ctx context.Context, now time.Time) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", domain.InvoiceStatusPending, now).
		Order("due_date ASC, id ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) MarkInvoicesOverdue(ctx context.Context, ids []snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id IN ? AND status = ?", ids, domain.InvoiceStatusPending).
		Updates(map[string]any{
			"status":     domain.InvoiceStatusOverdue,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// SumActiveApplications prices the project's active add-ons, preferring the
// tenant's custom price over the catalog price.
func (r *repository) SumActiveApplications(ctx context.Context, projectID snowflake.ID) (int64, decimal.Decimal, error) {
	var rows []struct {
		Price decimal.Decimal `gorm:"column:price"`
	}
	if err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(ta.custom_price, a.price) AS price
		 FROM tenant_applications ta
		 JOIN applications a ON a.id = ta.application_id
		 WHERE ta.project_id = ? AND ta.is_active = ? AND a.is_active = ?`,
		projectID,
		true,
		true,
	).Scan(&rows).Error; err != nil {
		return 0, decimal.Zero, err
	}

	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Price)
	}
	return int64(len(rows)), total, nil
}

func (r *repository) ProjectActive(ctx context.Context, projectID snowflake.ID) (bool, error) {
	var row struct {
		IsActive bool `gorm:"column:is_active"`
	}
	res := r.db.WithContext(ctx).Raw(`SELECT is_active FROM projects WHERE id = ?`, projectID).Scan(&row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, domain.ErrInvalidProject
	}
	return row.IsActive, nil
}

func (r *repository) SetProjectsActive(ctx context.Context, ids []snowflake.ID, active bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE projects SET is_active = ?, updated_at = ? WHERE id IN ? AND is_active <> ?`,
		active,
		time.Now().UTC(),
		ids,
		active,
	)
	return res.RowsAffected, res.Error
}
