package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantgate/internal/authorization"
	billingdomain "github.com/smallbiznis/tenantgate/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/tenantgate/internal/catalog/domain"
	"github.com/smallbiznis/tenantgate/internal/resolver"
	"github.com/smallbiznis/tenantgate/internal/scheduler"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"github.com/smallbiznis/tenantgate/internal/vault"
	"github.com/smallbiznis/tenantgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTenantRequired     = errors.New("tenant_required")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

type errorRule struct {
	targets []error
	status  int
	typ     string
	message string
}

var errorRules = []errorRule{
	{[]error{resolver.ErrNotFound, ErrTenantRequired}, http.StatusNotFound, "tenant_not_found", "tenant not found"},
	{[]error{resolver.ErrInactive}, http.StatusForbidden, "account_inactive", "account is inactive"},
	{[]error{vault.ErrCrypto}, http.StatusInternalServerError, "tenant_credentials_corrupt", "tenant credentials could not be decrypted"},
	{[]error{resolver.ErrDependencyUnavailable, ErrServiceUnavailable}, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
	{[]error{ErrUnauthorized, authorization.ErrInvalidActor}, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{[]error{ErrForbidden, authorization.ErrForbidden}, http.StatusForbidden, "forbidden", "forbidden"},
	{[]error{billingdomain.ErrAlreadyPaid}, http.StatusConflict, "invoice_already_paid", "invoice is already paid"},
	{[]error{billingdomain.ErrDuplicateSubscription}, http.StatusConflict, "duplicate_subscription", "project already has an active subscription"},
	{[]error{billingdomain.ErrCycleAlreadyAdvanced}, http.StatusConflict, "billing_cycle_already_advanced", "billing cycle already advanced"},
	{[]error{tenantdomain.ErrSlugTaken, catalogdomain.ErrSlugTaken}, http.StatusConflict, "slug_taken", "slug is already in use"},
	{[]error{tenantdomain.ErrDomainTaken}, http.StatusConflict, "domain_taken", "domain is already in use"},
	{[]error{scheduler.ErrRunInProgress}, http.StatusConflict, "run_in_progress", "a run is already in progress"},
	{[]error{billingdomain.ErrPaymentFailed}, http.StatusPaymentRequired, "payment_failed", "payment failed"},
	{[]error{catalogdomain.ErrApplicationInactive}, http.StatusUnprocessableEntity, "application_inactive", "application is inactive"},
	{[]error{
		ErrNotFound,
		billingdomain.ErrInvoiceNotFound,
		billingdomain.ErrSubscriptionNotFound,
		tenantdomain.ErrProjectNotFound,
		tenantdomain.ErrMemberNotFound,
		catalogdomain.ErrApplicationNotFound,
		catalogdomain.ErrNotSelected,
		gorm.ErrRecordNotFound,
	}, http.StatusNotFound, "not_found", "not found"},
}

var validationErrs = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	billingdomain.ErrInvalidPrice,
	billingdomain.ErrInvalidProject,
	tenantdomain.ErrInvalidName,
	tenantdomain.ErrInvalidProjectID,
	tenantdomain.ErrInvalidDSN,
	tenantdomain.ErrInvalidRole,
	tenantdomain.ErrInvalidUser,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidPrice,
	authorization.ErrInvalidProject,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	for _, rule := range errorRules {
		for _, target := range rule.targets {
			if errors.Is(err, target) {
				return rule.status, errorPayload{Type: rule.typ, Message: rule.message}
			}
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_page_token":
		return "page_token"
	case "invalid_database_dsn":
		return "database_dsn"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// classifyErrorForLog reports the error type and code written to request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	kind := "server"
	if status < http.StatusInternalServerError {
		kind = "client"
	}
	if len(payload.Errors) > 0 {
		return kind, payload.Errors[0].Code
	}
	return kind, payload.Type
}
