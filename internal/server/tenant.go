package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"go.uber.org/zap"
)

type tenantSummary struct {
	ProjectID     string `json:"project_id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Domain        string `json:"domain,omitempty"`
	IsActive      bool   `json:"is_active"`
	StorageBucket string `json:"storage_bucket,omitempty"`
	HasDatabase   bool   `json:"has_database"`
	HasStorage    bool   `json:"has_storage"`
	LLMProvider   string `json:"llm_provider,omitempty"`
}

// GetTenant describes the resolved tenant without exposing credentials.
func (s *Server) GetTenant(c *gin.Context) {
	tc, _ := tenantctx.FromGin(c)
	c.JSON(http.StatusOK, gin.H{"data": tenantSummary{
		ProjectID:     tc.ProjectID.String(),
		Name:          tc.Name,
		Slug:          tc.Slug,
		Domain:        tc.Domain,
		IsActive:      tc.IsActive,
		StorageBucket: tc.StorageCred.Bucket,
		HasDatabase:   tc.DB != nil,
		HasStorage:    tc.Storage != nil,
		LLMProvider:   tc.LLMProvider,
	}})
}

func (s *Server) PingTenantStorage(c *gin.Context) {
	tc, _ := tenantctx.FromGin(c)
	if tc.Storage == nil {
		AbortWithError(c, newValidationError("storage", "storage_not_configured", "tenant has no object storage"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.tenantProbe)
	defer cancel()
	if err := tc.Storage.Ping(ctx); err != nil {
		s.log.Warn("tenant storage ping failed",
			zap.String("project_id", tc.ProjectID.String()),
			zap.String("bucket", tc.Storage.Bucket()),
			zap.Error(err),
		)
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"bucket": tc.Storage.Bucket(), "status": "ok"}})
}
