package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantgate/internal/authorization"
	billingdomain "github.com/smallbiznis/tenantgate/internal/billing/domain"
	"github.com/smallbiznis/tenantgate/internal/invoicedoc"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"github.com/smallbiznis/tenantgate/pkg/db/pagination"
	"go.uber.org/zap"
)

type createSubscriptionRequest struct {
	OwnerUserID      string          `json:"owner_user_id"`
	UserPrice        decimal.Decimal `json:"user_price"`
	ApplicationPrice decimal.Decimal `json:"application_price"`
}

type payInvoiceRequest struct {
	Method string `json:"method"`
}

func (s *Server) GetBillingStatus(c *gin.Context) {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.billingSvc.GetBillingStatus(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

func (s *Server) CreateSubscription(c *gin.Context) {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	owner := strings.TrimSpace(req.OwnerUserID)
	if owner == "" {
		owner = userIDFromContext(c)
	}

	sub, err := s.billingSvc.CreateSubscription(c.Request.Context(), billingdomain.CreateSubscriptionRequest{
		ProjectID:        projectID,
		OwnerUserID:      owner,
		UserPrice:        req.UserPrice,
		ApplicationPrice: req.ApplicationPrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

func (s *Server) ListInvoices(c *gin.Context) {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoices, page, err := s.billingSvc.ListInvoices(c.Request.Context(), projectID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices, "page_info": page})
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	invoiceID, err := parseIDParam(c, "invoiceId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	invoice, err := s.billingSvc.GetInvoice(ctx, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeProject(c, invoice.ProjectID, authorization.ObjectBilling, authorization.ActionBillingView); err != nil {
		AbortWithError(c, err)
		return
	}
	if s.renderer == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	projectName := invoice.ProjectID.String()
	project, err := s.tenantSvc.GetByID(ctx, invoice.ProjectID)
	switch {
	case err == nil:
		projectName = project.Name
	case errors.Is(err, tenantdomain.ErrProjectNotFound):
	default:
		AbortWithError(c, err)
		return
	}

	doc, err := s.renderer.Render(ctx, invoicedoc.FromInvoice(invoice, projectName))
	if err != nil {
		s.log.Error("invoice render failed", zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", invoice.InvoiceNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) PayInvoice(c *gin.Context) {
	invoiceID, err := parseIDParam(c, "invoiceId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req payInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	ctx := c.Request.Context()
	invoice, err := s.billingSvc.GetInvoice(ctx, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeProject(c, invoice.ProjectID, authorization.ObjectInvoice, authorization.ActionInvoicePay); err != nil {
		AbortWithError(c, err)
		return
	}

	paid, err := s.billingSvc.ProcessPayment(ctx, invoiceID, strings.TrimSpace(req.Method))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": paid})
}

func (s *Server) RunMonthlyBilling(c *gin.Context) {
	if s.jobs == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	result, err := s.jobs.TriggerMonthlyBilling(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"processed":   result.Processed,
		"errors":      result.Errors,
		"duration_ms": result.Duration.Milliseconds(),
	}})
}

func (s *Server) RunOverdueSweep(c *gin.Context) {
	if s.jobs == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	marked, err := s.jobs.TriggerOverdueSweep(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"overdue": marked}})
}
