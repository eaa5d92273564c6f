package payment

import (
	"fmt"

	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/payment/adapters"
	"github.com/smallbiznis/tenantgate/internal/payment/adapters/manual"
	"github.com/smallbiznis/tenantgate/internal/payment/adapters/stripe"
	"github.com/smallbiznis/tenantgate/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock/gateway_mock.go -package=mock github.com/smallbiznis/tenantgate/internal/payment/domain Gateway

var Module = fx.Module("payment",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
			manual.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
)

// NewGateway selects the configured settlement provider.
func NewGateway(cfg config.Config, registry *adapters.Registry, log *zap.Logger) (domain.Gateway, error) {
	gw, err := registry.NewGateway(cfg.PaymentProvider, domain.AdapterConfig{
		SecretKey: cfg.StripeSecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("payment provider %q: %w", cfg.PaymentProvider, err)
	}
	log.Info("payment gateway ready", zap.String("provider", gw.Provider()))
	return gw, nil
}
