package server

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantgate/internal/authorization"
	obscontext "github.com/smallbiznis/tenantgate/internal/observability/context"
	"github.com/smallbiznis/tenantgate/internal/resolver"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
)

const (
	HeaderProjectID = "X-Project-ID"
	HeaderUserID    = "X-User-ID"

	contextUserIDKey  = "user_id"
	contextActorKey   = "actor"
	contextProjectKey = "project_id"
)

// ResolveTenant attaches the tenant addressed by X-Project-ID or the Host
// header. Requests that match no tenant continue without one.
func (s *Server) ResolveTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		explicit := strings.TrimSpace(c.GetHeader(HeaderProjectID))
		tc, err := s.resolver.Resolve(c.Request.Context(), explicit, c.Request.Host)
		if err != nil {
			if errors.Is(err, resolver.ErrNotFound) {
				c.Next()
				return
			}
			AbortWithError(c, err)
			return
		}

		tenantctx.SetGin(c, tc)
		c.Set(contextProjectKey, tc.ProjectID.String())
		c.Request = c.Request.WithContext(obscontext.WithProjectID(c.Request.Context(), tc.ProjectID.String()))
		c.Next()
	}
}

func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := tenantctx.FromGin(c); !ok {
			AbortWithError(c, ErrTenantRequired)
			return
		}
		c.Next()
	}
}

// AuthRequired accepts either the user id forwarded by the identity proxy or
// the admin token, which acts as the system actor.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.validAdminToken(c) {
			setActor(c, authorization.ActorSystem)
			c.Next()
			return
		}

		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextUserIDKey, userID)
		setActor(c, authorization.UserActor(userID))
		c.Next()
	}
}

func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(s.cfg.AdminAPIToken) == "" {
			s.log.Warn("admin request rejected, ADMIN_API_TOKEN is not configured")
			AbortWithError(c, ErrForbidden)
			return
		}
		if !s.validAdminToken(c) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		setActor(c, authorization.ActorSystem)
		c.Next()
	}
}

func (s *Server) validAdminToken(c *gin.Context) bool {
	expected := strings.TrimSpace(s.cfg.AdminAPIToken)
	if expected == "" {
		return false
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) == 1
}

func setActor(c *gin.Context, actor string) {
	c.Set(contextActorKey, actor)
	ctx := obscontext.WithActor(c.Request.Context(), actorType(actor), actor)
	c.Request = c.Request.WithContext(ctx)
}

func actorType(actor string) string {
	if actor == authorization.ActorSystem {
		return "system"
	}
	return "user"
}
