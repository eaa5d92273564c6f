// Package manual records offline settlements (bank transfer, cheque) that
// were collected outside any gateway.
package manual

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/tenantgate/internal/payment/domain"
)

const providerName = "manual"

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Provider() string { return providerName }

func (f *Factory) NewGateway(paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	return &Adapter{now: func() time.Time { return time.Now().UTC() }}, nil
}

type Adapter struct {
	now func() time.Time
}

func (a *Adapter) Provider() string { return providerName }

func (a *Adapter) Settle(ctx context.Context, req paymentdomain.SettlementRequest) (*paymentdomain.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(req.IdempotencyKey)
	if reference == "" {
		reference = uuid.NewString()
	}
	return &paymentdomain.Settlement{
		Provider:  providerName,
		Reference: "manual_" + reference,
		SettledAt: a.now(),
	}, nil
}
