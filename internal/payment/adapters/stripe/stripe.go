package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/tenantgate/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

const providerName = "stripe"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewGateway(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	sc := client.New(secret, nil)
	return &Adapter{intents: intentsAPI{sc: sc}}, nil
}

// paymentIntents is the slice of the stripe client the adapter calls.
type paymentIntents interface {
	New(params *stripego.PaymentIntentParams) (*stripego.PaymentIntent, error)
}

type intentsAPI struct {
	sc *client.API
}

func (i intentsAPI) New(params *stripego.PaymentIntentParams) (*stripego.PaymentIntent, error) {
	return i.sc.PaymentIntents.New(params)
}

type Adapter struct {
	intents paymentIntents
}

func (a *Adapter) Provider() string { return providerName }

// Settle creates and confirms a PaymentIntent off-session with the given
// payment method. The idempotency key makes retries of one invoice safe.
func (a *Adapter) Settle(ctx context.Context, req paymentdomain.SettlementRequest) (*paymentdomain.Settlement, error) {
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	params := &stripego.PaymentIntentParams{
		Amount:        stripego.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency:      stripego.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripego.String(method),
		Confirm:       stripego.Bool(true),
		OffSession:    stripego.Bool(true),
		Description:   stripego.String(fmt.Sprintf("Invoice %s", req.InvoiceNumber)),
	}
	params.Context = ctx
	params.AddMetadata("invoice_id", req.InvoiceID.String())
	params.AddMetadata("project_id", req.ProjectID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := a.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrDeclined, err)
	}
	if intent.Status != stripego.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: intent status %s", paymentdomain.ErrDeclined, intent.Status)
	}

	return &paymentdomain.Settlement{
		Provider:  providerName,
		Reference: intent.ID,
		SettledAt: time.Now().UTC(),
	}, nil
}
