package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantgate/pkg/db/pagination"
)

type Service interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	CalculateBilling(ctx context.Context, projectID snowflake.ID) (*BillingCalculation, error)
	GenerateMonthlyInvoice(ctx context.Context, projectID snowflake.ID) (*Invoice, error)
	ProcessPayment(ctx context.Context, invoiceID snowflake.ID, method string) (*Invoice, error)
	CheckOverdueInvoices(ctx context.Context) (int, error)
	ProcessMonthlyBilling(ctx context.Context) (*BillingRunResult, error)
	GetBillingStatus(ctx context.Context, projectID snowflake.ID) (*BillingStatus, error)
	ListInvoices(ctx context.Context, projectID snowflake.ID, page pagination.Pagination) ([]Invoice, pagination.PageInfo, error)
	GetInvoice(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
}

type CreateSubscriptionRequest struct {
	ProjectID        snowflake.ID    `json:"project_id"`
	OwnerUserID      string          `json:"owner_user_id"`
	UserPrice        decimal.Decimal `json:"user_price"`
	ApplicationPrice decimal.Decimal `json:"application_price"`
}
