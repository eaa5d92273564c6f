package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StorageCredentials are the decrypted object-storage settings of a tenant.
type StorageCredentials struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// ObjectStore is the slice of the tenant storage client request handlers use.
type ObjectStore interface {
	Ping(ctx context.Context) error
	Bucket() string
}

// TenantContext is attached to a request once its tenant has been resolved.
// DB and Storage are shared handles owned by the client registries; callers
// must not close them.
type TenantContext struct {
	ProjectID   snowflake.ID
	Name        string
	Slug        string
	Domain      string
	IsActive    bool
	DatabaseDSN string
	StorageCred StorageCredentials
	LLMProvider string
	LLMAPIKey   string

	DB      *gorm.DB
	Storage ObjectStore
}

type keyType string

const (
	TenantKey keyType = "tenant"
)

func WithTenant(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, TenantKey, tc)
}

func FromContext(ctx context.Context) (*TenantContext, bool) {
	if ctx == nil {
		return nil, false
	}
	tc, ok := ctx.Value(TenantKey).(*TenantContext)
	return tc, ok && tc != nil
}

// TenantID returns the resolved project id, if any.
func TenantID(ctx context.Context) (int64, bool) {
	tc, ok := FromContext(ctx)
	if !ok {
		return 0, false
	}
	return tc.ProjectID.Int64(), true
}

// FromGin reads the tenant set by the resolution middleware.
func FromGin(c *gin.Context) (*TenantContext, bool) {
	if v, ok := c.Get(string(TenantKey)); ok {
		if tc, ok := v.(*TenantContext); ok && tc != nil {
			return tc, true
		}
	}
	return FromContext(c.Request.Context())
}

// SetGin stores the tenant on both the gin context and the request context.
func SetGin(c *gin.Context, tc *TenantContext) {
	c.Set(string(TenantKey), tc)
	c.Request = c.Request.WithContext(WithTenant(c.Request.Context(), tc))
}
