package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/tenantgate/internal/catalog/domain"
)

type addApplicationRequest struct {
	ApplicationID string  `json:"application_id"`
	CustomPrice   *string `json:"custom_price"`
}

func (s *Server) ListApplications(c *gin.Context) {
	apps, err := s.catalogSvc.ListApplications(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": apps})
}

func (s *Server) CreateApplication(c *gin.Context) {
	var req catalogdomain.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	app, err := s.catalogSvc.CreateApplication(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": app})
}

func (s *Server) ListProjectApplications(c *gin.Context) {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	apps, err := s.catalogSvc.ListProjectApplications(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": apps})
}

func (s *Server) AddProjectApplication(c *gin.Context) {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	appID, err := snowflake.ParseString(req.ApplicationID)
	if err != nil || appID <= 0 {
		AbortWithError(c, newValidationError("application_id", "invalid_application_id", "invalid application id"))
		return
	}
	customPrice, err := parseOptionalDecimal(req.CustomPrice)
	if err != nil {
		AbortWithError(c, newValidationError("custom_price", "invalid_price", "invalid custom price"))
		return
	}

	selection, err := s.catalogSvc.AddToProject(c.Request.Context(), projectID, appID, customPrice)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": selection})
}

func (s *Server) RemoveProjectApplication(c *gin.Context) {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	appID, err := parseIDParam(c, "appId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.catalogSvc.RemoveFromProject(c.Request.Context(), projectID, appID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
