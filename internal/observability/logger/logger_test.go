package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tenantgate/internal/observability/context"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactingCoreMasksCredentials(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(NewRedactingCore(core)).With(zap.String("database_dsn", "postgres://u:p@db/t"))

	log.Info("tenant opened",
		zap.String("secret_access_key", "AKIA"),
		zap.String("bucket", "tenant-a"),
		zap.Int("token_count", 3),
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, redacted, fields["database_dsn"])
	assert.Equal(t, redacted, fields["secret_access_key"])
	assert.Equal(t, "tenant-a", fields["bucket"])
	assert.EqualValues(t, 3, fields["token_count"])
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithProjectID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "user", "u-1")

	WithContext(ctx, zap.New(core)).Info("hello")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["project_id"])
	assert.Equal(t, "user:u-1", fields["actor"])
}

func TestWithContextLeavesBareLoggerAlone(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestParseLevelRejectsGarbage(t *testing.T) {
	_, err := parseLevel("loud")
	require.Error(t, err)

	level, err := parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UPDATE", operationFromSQL("  update invoices set status = 'paid'"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestGinMiddlewareLogsTenantAndClassifiedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "client", "tenant_not_found" },
	}))
	r.GET("/api/tenant", func(c *gin.Context) {
		c.Set(string(tenantctx.TenantKey), &tenantctx.TenantContext{ProjectID: snowflake.ID(7), Slug: "acme"})
		_ = c.Error(errors.New("missing"))
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	req.Header.Set(HeaderRequestID, "req-9")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-9", w.Header().Get(HeaderRequestID))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "acme", fields["tenant"])
	assert.Equal(t, "7", fields["project_id"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "tenant_not_found", fields["error_code"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/tenant", http.StatusServiceUnavailable))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/tenant", http.StatusInternalServerError))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("unmatched", http.StatusNotFound))
}
