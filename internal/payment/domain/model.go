package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_payment_config")
	ErrDeclined         = errors.New("payment_declined")
	ErrInvalidAmount    = errors.New("invalid_payment_amount")
)

// SettlementRequest asks the gateway to collect an invoice amount.
type SettlementRequest struct {
	InvoiceID      snowflake.ID
	InvoiceNumber  string
	ProjectID      snowflake.ID
	Amount         decimal.Decimal
	Currency       string
	Method         string
	IdempotencyKey string
}

// Settlement is the gateway's confirmation of a successful charge.
type Settlement struct {
	Provider  string
	Reference string
	SettledAt time.Time
}

// Gateway settles invoice payments. Settlement is pass/fail: any error means
// nothing was collected.
type Gateway interface {
	Provider() string
	Settle(ctx context.Context, req SettlementRequest) (*Settlement, error)
}

type AdapterConfig struct {
	SecretKey string
}

type AdapterFactory interface {
	Provider() string
	NewGateway(cfg AdapterConfig) (Gateway, error)
}
