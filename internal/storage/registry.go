package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/smallbiznis/tenantgate/internal/clientregistry"
	"github.com/smallbiznis/tenantgate/internal/observability/metrics"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const registryKind = "storage"

// Factory builds a client for one set of credentials.
type Factory func(ctx context.Context, creds tenantctx.StorageCredentials) (*Client, error)

// Registry caches one Client per distinct credential set.
type Registry struct {
	reg     *clientregistry.Registry[*Client]
	factory Factory
}

func NewRegistry(factory Factory, m *metrics.TenantMetrics) *Registry {
	if factory == nil {
		factory = NewClient
	}
	return &Registry{
		factory: factory,
		reg: clientregistry.New[*Client](registryKind, nil,
			clientregistry.WithHooks[*Client](clientregistry.Hooks{
				OnBuild: m.IncRegistryBuild,
				OnSize:  m.SetRegistryHandles,
			}),
		),
	}
}

// Key identifies a credential set without holding the raw secret.
func Key(creds tenantctx.StorageCredentials) string {
	sum := sha256.Sum256([]byte(creds.SecretAccessKey))
	return strings.Join([]string{
		strings.TrimSpace(creds.Endpoint),
		strings.TrimSpace(creds.Region),
		strings.TrimSpace(creds.Bucket),
		strings.TrimSpace(creds.AccessKeyID),
		hex.EncodeToString(sum[:]),
	}, "|")
}

func (r *Registry) Get(ctx context.Context, creds tenantctx.StorageCredentials) (*Client, error) {
	return r.reg.GetFunc(ctx, Key(creds), func(ctx context.Context, _ string) (*Client, error) {
		return r.factory(ctx, creds)
	})
}

func (r *Registry) Evict(creds tenantctx.StorageCredentials) error {
	return r.reg.Evict(Key(creds))
}

func (r *Registry) EvictAll() error { return r.reg.EvictAll() }

func (r *Registry) Len() int { return r.reg.Len() }

func (r *Registry) Constructed() int64 { return r.reg.Constructed() }

type registryParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Metrics   *metrics.TenantMetrics `optional:"true"`
}

func provideRegistry(p registryParams) *Registry {
	reg := NewRegistry(NewClient, p.Metrics)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Log.Info("releasing tenant storage clients", zap.Int("count", reg.Len()))
			return reg.EvictAll()
		},
	})
	return reg
}

var Module = fx.Module("storage",
	fx.Provide(provideRegistry),
)
