package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/tenantgate/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v81"
)

type fakeIntents struct {
	got    *stripego.PaymentIntentParams
	intent *stripego.PaymentIntent
	err    error
}

func (f *fakeIntents) New(params *stripego.PaymentIntentParams) (*stripego.PaymentIntent, error) {
	f.got = params
	return f.intent, f.err
}

func request() paymentdomain.SettlementRequest {
	return paymentdomain.SettlementRequest{
		InvoiceID:      1,
		InvoiceNumber:  "INV-1",
		ProjectID:      2,
		Amount:         decimal.RequireFromString("30.00"),
		Currency:       "USD",
		Method:         "pm_card_visa",
		IdempotencyKey: "invoice-1",
	}
}

func TestSettleConvertsAmountToMinorUnits(t *testing.T) {
	fake := &fakeIntents{intent: &stripego.PaymentIntent{ID: "pi_123", Status: stripego.PaymentIntentStatusSucceeded}}
	adapter := &Adapter{intents: fake}

	settlement, err := adapter.Settle(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "pi_123", settlement.Reference)
	assert.Equal(t, int64(3000), *fake.got.Amount)
	assert.Equal(t, "usd", *fake.got.Currency)
	assert.True(t, *fake.got.Confirm)
	assert.Equal(t, "invoice-1", *fake.got.IdempotencyKey)
}

func TestSettleRejectsUnsucceededIntent(t *testing.T) {
	fake := &fakeIntents{intent: &stripego.PaymentIntent{ID: "pi_1", Status: stripego.PaymentIntentStatusRequiresAction}}
	_, err := (&Adapter{intents: fake}).Settle(context.Background(), request())
	assert.ErrorIs(t, err, paymentdomain.ErrDeclined)
}

func TestSettleWrapsStripeErrors(t *testing.T) {
	fake := &fakeIntents{err: errors.New("card_declined")}
	_, err := (&Adapter{intents: fake}).Settle(context.Background(), request())
	assert.ErrorIs(t, err, paymentdomain.ErrDeclined)
}

func TestFactoryRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewGateway(paymentdomain.AdapterConfig{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	gw, err := NewFactory().NewGateway(paymentdomain.AdapterConfig{SecretKey: "sk_test_123"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", gw.Provider())
}
