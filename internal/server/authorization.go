package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) authorizeProjectAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, err := parseIDParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorizeProject(c, projectID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeProject(c *gin.Context, projectID snowflake.ID, object string, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, projectID.String(), object, action)
}

func actorFromContext(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetString(contextActorKey))
	return actor, actor != ""
}

func userIDFromContext(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(contextUserIDKey))
}
