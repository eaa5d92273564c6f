// Package resolver turns an explicit project id or a request host into a
// fully wired tenant context.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantgate/internal/config"
	obsmetrics "github.com/smallbiznis/tenantgate/internal/observability/metrics"
	"github.com/smallbiznis/tenantgate/internal/observability/tracing"
	"github.com/smallbiznis/tenantgate/internal/storage"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"github.com/smallbiznis/tenantgate/internal/vault"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound              = errors.New("tenant_not_found")
	ErrInactive              = errors.New("account_inactive")
	ErrDependencyUnavailable = errors.New("dependency_unavailable")
)

const defaultTimeout = 5 * time.Second

// DatabaseRegistry hands out shared tenant database handles keyed by DSN.
type DatabaseRegistry interface {
	Get(ctx context.Context, dsn string) (*gorm.DB, error)
}

// StorageRegistry hands out shared object storage clients.
type StorageRegistry interface {
	Get(ctx context.Context, creds tenantctx.StorageCredentials) (*storage.Client, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Repo      tenantdomain.Repository
	Cipher    vault.Cipher
	Databases DatabaseRegistry
	Storage   StorageRegistry
	Metrics   *obsmetrics.TenantMetrics `optional:"true"`
}

type Resolver struct {
	log       *zap.Logger
	timeout   time.Duration
	repo      tenantdomain.Repository
	cipher    vault.Cipher
	databases DatabaseRegistry
	storage   StorageRegistry
	metrics   *obsmetrics.TenantMetrics
}

func New(p Params) *Resolver {
	timeout := p.Config.ResolverTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Resolver{
		log:       p.Log.Named("resolver"),
		timeout:   timeout,
		repo:      p.Repo,
		cipher:    p.Cipher,
		databases: p.Databases,
		storage:   p.Storage,
		metrics:   p.Metrics,
	}
}

// Resolve finds the project named by explicitID (a snowflake id, else a
// slug) or, when explicitID is empty, by host. Explicit ids win over host.
func (r *Resolver) Resolve(ctx context.Context, explicitID, host string) (*tenantctx.TenantContext, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := tracing.Start(ctx, "resolver", "tenant.resolve",
		attribute.Bool("tenant.explicit", strings.TrimSpace(explicitID) != ""),
	)
	tc, err := r.resolve(ctx, strings.TrimSpace(explicitID), host)
	result := outcome(err)
	span.SetAttributes(attribute.String("tenant.outcome", result))
	if tc != nil {
		span.SetAttributes(attribute.String("tenant.slug", tc.Slug))
	}
	if errors.Is(err, ErrNotFound) {
		tracing.End(span, nil)
	} else {
		tracing.End(span, err)
	}

	r.metrics.ObserveResolve(result, time.Since(start))
	return tc, err
}

func (r *Resolver) resolve(ctx context.Context, explicitID, host string) (*tenantctx.TenantContext, error) {
	project, err := r.lookup(ctx, explicitID, host)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrProjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: directory lookup: %v", ErrDependencyUnavailable, err)
	}
	if !project.IsActive {
		return nil, ErrInactive
	}

	secrets, err := tenantdomain.DecryptSecrets(r.cipher, project)
	if err != nil {
		r.log.Error("tenant credentials unreadable",
			zap.String("project_id", project.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	tc := &tenantctx.TenantContext{
		ProjectID:   project.ID,
		Name:        project.Name,
		Slug:        project.Slug,
		Domain:      project.DomainValue(),
		IsActive:    project.IsActive,
		DatabaseDSN: secrets.DatabaseDSN,
		StorageCred: secrets.Storage,
		LLMProvider: project.LLMProvider,
		LLMAPIKey:   secrets.LLMAPIKey,
	}

	if secrets.DatabaseDSN != "" && r.databases != nil {
		conn, err := r.databases.Get(ctx, secrets.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("%w: tenant database: %v", ErrDependencyUnavailable, err)
		}
		tc.DB = conn
	}
	if secrets.HasStorage() && r.storage != nil {
		client, err := r.storage.Get(ctx, secrets.Storage)
		if err != nil {
			return nil, fmt.Errorf("%w: tenant storage: %v", ErrDependencyUnavailable, err)
		}
		tc.Storage = client
	}
	return tc, nil
}

func (r *Resolver) lookup(ctx context.Context, explicitID, host string) (*tenantdomain.Project, error) {
	if explicitID != "" {
		if id, err := snowflake.ParseString(explicitID); err == nil && id > 0 {
			project, err := r.repo.FindByID(ctx, id)
			if !errors.Is(err, tenantdomain.ErrProjectNotFound) {
				return project, err
			}
		}
		return r.repo.FindBySlug(ctx, strings.ToLower(explicitID))
	}

	normalized := tenantdomain.NormalizeDomain(host)
	if normalized == "" {
		return nil, tenantdomain.ErrProjectNotFound
	}
	return r.repo.FindByDomain(ctx, normalized)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return obsmetrics.ResolveOutcomeResolved
	case errors.Is(err, ErrNotFound):
		return obsmetrics.ResolveOutcomeNotFound
	case errors.Is(err, ErrInactive):
		return obsmetrics.ResolveOutcomeInactive
	case errors.Is(err, vault.ErrCrypto):
		return obsmetrics.ResolveOutcomeCrypto
	default:
		return obsmetrics.ResolveOutcomeUnavailable
	}
}
