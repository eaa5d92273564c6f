package resolver

import (
	"github.com/smallbiznis/tenantgate/internal/storage"
	"github.com/smallbiznis/tenantgate/internal/tenantdb"
	"go.uber.org/fx"
)

var Module = fx.Module("resolver",
	fx.Provide(
		func(r *tenantdb.Registry) DatabaseRegistry { return r },
		func(r *storage.Registry) StorageRegistry { return r },
		New,
	),
)
