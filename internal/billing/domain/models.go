// Package domain holds subscription and invoice models for the billing engine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// Subscription drives monthly invoicing for one project. NextBilling is
// always the last day of a month at the billing cutoff.
type Subscription struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	ProjectID        snowflake.ID    `gorm:"not null;index" json:"project_id"`
	OwnerUserID      string          `gorm:"type:text;not null;default:''" json:"owner_user_id"`
	UserPrice        decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"user_price"`
	ApplicationPrice decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"application_price"`
	LastBilled       *time.Time      `json:"last_billed,omitempty"`
	NextBilling      time.Time       `gorm:"not null;index" json:"next_billing"`
	IsActive         bool            `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

type Invoice struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceNumber     string          `gorm:"type:text;not null;uniqueIndex:ux_invoices_number" json:"invoice_number"`
	ProjectID         snowflake.ID    `gorm:"not null;index" json:"project_id"`
	SubscriptionID    snowflake.ID    `gorm:"not null" json:"subscription_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	UserCount         int64           `gorm:"not null;default:0" json:"user_count"`
	UserAmount        decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"user_amount"`
	ApplicationCount  int64           `gorm:"not null;default:0" json:"application_count"`
	ApplicationAmount decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"application_amount"`
	Currency          string          `gorm:"type:text;not null" json:"currency"`
	PeriodStart       time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time       `gorm:"not null" json:"period_end"`
	DueDate           time.Time       `gorm:"not null;index" json:"due_date"`
	Status            InvoiceStatus   `gorm:"type:text;not null" json:"status"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod     string          `gorm:"type:text;not null;default:''" json:"payment_method,omitempty"`
	PaymentReference  string          `gorm:"type:text;not null;default:''" json:"payment_reference,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// BillingCalculation is the usage snapshot an invoice is built from.
type BillingCalculation struct {
	ProjectID         snowflake.ID    `json:"project_id"`
	UserCount         int64           `json:"user_count"`
	ApplicationCount  int64           `json:"application_count"`
	UserAmount        decimal.Decimal `json:"user_amount"`
	ApplicationAmount decimal.Decimal `json:"application_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
}

type BillingRunResult struct {
	Processed int           `json:"processed"`
	Errors    int           `json:"errors"`
	Overdue   int           `json:"overdue"`
	Duration  time.Duration `json:"duration"`
}

type BillingStatus struct {
	ProjectID     snowflake.ID        `json:"project_id"`
	ProjectActive bool                `json:"project_active"`
	Subscription  *Subscription       `json:"subscription,omitempty"`
	Invoices      []Invoice           `json:"invoices"`
	Usage         *BillingCalculation `json:"usage,omitempty"`
	UsageError    string              `json:"usage_error,omitempty"`
}
