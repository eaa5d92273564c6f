package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/storage"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"github.com/smallbiznis/tenantgate/internal/tenant/repository"
	"github.com/smallbiznis/tenantgate/internal/tenantdb"
	"github.com/smallbiznis/tenantgate/internal/testutil"
	"github.com/smallbiznis/tenantgate/internal/vault"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type env struct {
	db       *gorm.DB
	node     *snowflake.Node
	cipher   *vault.Vault
	dbs      *tenantdb.Registry
	storage  *storage.Registry
	resolver *Resolver
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := testutil.ControlPlaneDB(t)
	cipher, err := vault.NewWithKey("resolver-test-key")
	require.NoError(t, err)

	dbs := tenantdb.NewRegistry(nil, nil)
	objects := storage.NewRegistry(nil, nil)
	t.Cleanup(func() {
		_ = dbs.EvictAll()
		_ = objects.EvictAll()
	})

	return &env{
		db:      conn,
		node:    testutil.Node(t),
		cipher:  cipher,
		dbs:     dbs,
		storage: objects,
		resolver: New(Params{
			Log:       zap.NewNop(),
			Config:    config.Config{ResolverTimeout: 2 * time.Second},
			Repo:      repository.NewRepository(conn),
			Cipher:    cipher,
			Databases: dbs,
			Storage:   objects,
		}),
	}
}

func (e *env) seed(t *testing.T, slug, domain, dsn string, active bool) *tenantdomain.Project {
	t.Helper()
	encDSN, err := e.cipher.Encrypt(dsn)
	require.NoError(t, err)
	encStorage, err := e.cipher.Encrypt(`{"access_key_id":"AKIA","secret_access_key":"secret"}`)
	require.NoError(t, err)

	now := time.Now().UTC()
	p := &tenantdomain.Project{
		ID:                          e.node.Generate(),
		Name:                        slug,
		Slug:                        slug,
		DatabaseDSNEncrypted:        encDSN,
		StorageCredentialsEncrypted: encStorage,
		StorageBucket:               slug + "-files",
		StorageRegion:               "us-east-1",
		StorageEndpoint:             "http://127.0.0.1:9000",
		IsActive:                    true,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}
	if domain != "" {
		p.Domain = &domain
	}
	require.NoError(t, e.db.Create(p).Error)
	if !active {
		require.NoError(t, e.db.Model(p).Update("is_active", false).Error)
		p.IsActive = false
	}
	return p
}

func TestResolveByIDSlugAndHost(t *testing.T) {
	e := newEnv(t)
	_, dsn := testutil.TenantDB(t)
	acme := e.seed(t, "acme", "acme.example.com", dsn, true)
	ctx := context.Background()

	byID, err := e.resolver.Resolve(ctx, acme.ID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, byID.ProjectID)
	assert.Equal(t, dsn, byID.DatabaseDSN)
	assert.Equal(t, "secret", byID.StorageCred.SecretAccessKey)
	require.NotNil(t, byID.DB)
	require.NotNil(t, byID.Storage)
	assert.Equal(t, "acme-files", byID.Storage.Bucket())

	bySlug, err := e.resolver.Resolve(ctx, "ACME", "")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, bySlug.ProjectID)

	byHost, err := e.resolver.Resolve(ctx, "", "https://Acme.Example.com:8443/dashboard")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, byHost.ProjectID)

	// Every resolution shares one handle per DSN and per credential set.
	assert.Same(t, byID.DB, byHost.DB)
	assert.Equal(t, 1, e.dbs.Len())
	assert.Equal(t, 1, e.storage.Len())
}

func TestConcurrentFirstResolveSharesOneHandle(t *testing.T) {
	e := newEnv(t)
	_, dsn := testutil.TenantDB(t)
	e.seed(t, "fresh", "fresh.example.com", dsn, true)

	const callers = 16
	var (
		wg      sync.WaitGroup
		results = make([]*tenantctx.TenantContext, callers)
		errs    = make([]error, callers)
		start   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = e.resolver.Resolve(context.Background(), "fresh", "")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0].DB, results[i].DB)
		assert.Same(t, results[0].Storage, results[i].Storage)
	}
	assert.EqualValues(t, 1, e.dbs.Constructed())
	assert.EqualValues(t, 1, e.storage.Constructed())
}

func TestExplicitIDWinsOverHost(t *testing.T) {
	e := newEnv(t)
	_, dsnA := testutil.TenantDB(t)
	_, dsnB := testutil.TenantDB(t)
	acme := e.seed(t, "acme", "acme.example.com", dsnA, true)
	e.seed(t, "globex", "globex.example.com", dsnB, true)

	tc, err := e.resolver.Resolve(context.Background(), "acme", "globex.example.com")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, tc.ProjectID)
}

func TestResolveNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.resolver.Resolve(ctx, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.resolver.Resolve(ctx, "nobody", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.resolver.Resolve(ctx, e.node.Generate().String(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.resolver.Resolve(ctx, "", "unknown.example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveInactiveIsDistinct(t *testing.T) {
	e := newEnv(t)
	_, dsn := testutil.TenantDB(t)
	e.seed(t, "dormant", "", dsn, false)

	_, err := e.resolver.Resolve(context.Background(), "dormant", "")
	assert.ErrorIs(t, err, ErrInactive)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Zero(t, e.dbs.Len())
}

func TestResolveCorruptCredentials(t *testing.T) {
	e := newEnv(t)
	_, dsn := testutil.TenantDB(t)
	p := e.seed(t, "broken", "", dsn, true)
	require.NoError(t, e.db.Model(p).Update("database_dsn_encrypted", "v1:not-base64!").Error)

	_, err := e.resolver.Resolve(context.Background(), "broken", "")
	assert.ErrorIs(t, err, vault.ErrCrypto)
}

func TestResolveUnreachableDatabase(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "offline", "", "postgres://tenant:pw@127.0.0.1:1/offline?sslmode=disable&connect_timeout=1", true)

	_, err := e.resolver.Resolve(context.Background(), "offline", "")
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.Zero(t, e.dbs.Len())
}
