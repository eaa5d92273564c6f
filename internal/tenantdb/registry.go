// Package tenantdb owns the per-tenant database handles and the queries the
// control plane runs against tenant databases.
package tenantdb

import (
	"context"

	"github.com/smallbiznis/tenantgate/internal/clientregistry"
	"github.com/smallbiznis/tenantgate/internal/observability/metrics"
	"github.com/smallbiznis/tenantgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const registryKind = "database"

// Opener opens a tenant database from its decrypted DSN.
type Opener func(ctx context.Context, dsn string) (*gorm.DB, error)

// Registry caches one *gorm.DB per distinct DSN.
type Registry struct {
	*clientregistry.Registry[*gorm.DB]
}

func NewRegistry(open Opener, m *metrics.TenantMetrics) *Registry {
	if open == nil {
		open = db.OpenTenant
	}
	return &Registry{
		Registry: clientregistry.New(registryKind,
			clientregistry.Builder[*gorm.DB](open),
			clientregistry.WithCloser[*gorm.DB](db.Close),
			clientregistry.WithHooks[*gorm.DB](clientregistry.Hooks{
				OnBuild: m.IncRegistryBuild,
				OnSize:  m.SetRegistryHandles,
			}),
		),
	}
}

type registryParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Metrics   *metrics.TenantMetrics `optional:"true"`
}

func provideRegistry(p registryParams) *Registry {
	reg := NewRegistry(db.OpenTenant, p.Metrics)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Log.Info("closing tenant database handles", zap.Int("count", reg.Len()))
			return reg.EvictAll()
		},
	})
	return reg
}
