package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantgate/pkg/db/pagination"
	"gorm.io/gorm"
)

// PaymentUpdate records a settlement against an invoice.
type PaymentUpdate struct {
	PaidAt    time.Time
	Method    string
	Reference string
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateSubscription(ctx context.Context, sub *Subscription) error
	FindActiveSubscription(ctx context.Context, projectID snowflake.ID) (*Subscription, error)
	ListDueSubscriptions(ctx context.Context, cutoff time.Time) ([]Subscription, error)
	AdvanceSubscription(ctx context.Context, id snowflake.ID, expectedNext, lastBilled, nextBilling time.Time) (bool, error)

	CreateInvoice(ctx context.Context, invoice *Invoice) error
	FindInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, projectID snowflake.ID, page pagination.Pagination) ([]Invoice, pagination.PageInfo, error)
	MarkInvoicePaid(ctx context.Context, id snowflake.ID, update PaymentUpdate) (bool, error)
	ListOverdueCandidates(ctx context.Context, now time.Time) ([]Invoice, error)
	MarkInvoicesOverdue(ctx context.Context, ids []snowflake.ID, now time.Time) (int64, error)

	SumActiveApplications(ctx context.Context, projectID snowflake.ID) (int64, decimal.Decimal, error)
	ProjectActive(ctx context.Context, projectID snowflake.ID) (bool, error)
	SetProjectsActive(ctx context.Context, ids []snowflake.ID, active bool) (int64, error)
}
