package tenant

import (
	"github.com/smallbiznis/tenantgate/internal/storage"
	"github.com/smallbiznis/tenantgate/internal/tenant/repository"
	"github.com/smallbiznis/tenantgate/internal/tenant/service"
	"github.com/smallbiznis/tenantgate/internal/tenantdb"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewDSNLookup),
	fx.Provide(
		func(r *tenantdb.Registry) service.DatabaseEvictor { return r },
		func(r *storage.Registry) service.StorageEvictor { return r },
	),
	fx.Provide(service.NewService),
)
