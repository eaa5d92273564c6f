package billing

import (
	"github.com/smallbiznis/tenantgate/internal/billing/event"
	"github.com/smallbiznis/tenantgate/internal/billing/repository"
	"github.com/smallbiznis/tenantgate/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(event.NewOutboxPublisher),
	fx.Provide(service.NewService),
)
