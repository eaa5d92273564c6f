package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tenantgate/internal/authorization"
	billingdomain "github.com/smallbiznis/tenantgate/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/tenantgate/internal/catalog/domain"
	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/invoicedoc"
	"github.com/smallbiznis/tenantgate/internal/observability"
	obsmiddleware "github.com/smallbiznis/tenantgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tenantgate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tenantgate/internal/observability/tracing"
	"github.com/smallbiznis/tenantgate/internal/resolver"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(
		func(r *resolver.Resolver) TenantResolver { return r },
	),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

// TenantResolver maps a request to its tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, explicitID, host string) (*tenantctx.TenantContext, error)
}

// JobTrigger runs scheduler jobs on demand.
type JobTrigger interface {
	TriggerMonthlyBilling(ctx context.Context) (*billingdomain.BillingRunResult, error)
	TriggerOverdueSweep(ctx context.Context) (int, error)
}

// InvoiceRenderer produces the PDF form of an invoice.
type InvoiceRenderer interface {
	Render(ctx context.Context, invoice invoicedoc.InvoiceData) ([]byte, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	resolver    TenantResolver
	authzSvc    authorization.Service
	tenantSvc   tenantdomain.Service
	billingSvc  billingdomain.Service
	catalogSvc  catalogdomain.Service
	renderer    InvoiceRenderer
	jobs        JobTrigger
	tenantProbe time.Duration
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Resolver   TenantResolver
	AuthzSvc   authorization.Service
	TenantSvc  tenantdomain.Service
	BillingSvc billingdomain.Service
	CatalogSvc catalogdomain.Service
	Renderer   *invoicedoc.Renderer

	Scheduler JobTrigger `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http"),
		resolver:    p.Resolver,
		authzSvc:    p.AuthzSvc,
		tenantSvc:   p.TenantSvc,
		billingSvc:  p.BillingSvc,
		catalogSvc:  p.CatalogSvc,
		jobs:        p.Scheduler,
		tenantProbe: 5 * time.Second,
	}
	if p.Renderer != nil {
		svc.renderer = p.Renderer
	}

	svc.RegisterAPIRoutes()
	svc.RegisterAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Tenant --------
	tenant := api.Group("/tenant", s.ResolveTenant(), s.TenantRequired())
	tenant.GET("", s.GetTenant)
	tenant.GET("/storage/ping", s.PingTenantStorage)

	// -------- Catalog --------
	api.GET("/applications", s.ListApplications)

	// -------- Billing --------
	projects := api.Group("/projects/:id", s.AuthRequired())
	projects.GET("/billing", s.authorizeProjectAction(authorization.ObjectBilling, authorization.ActionBillingView), s.GetBillingStatus)
	projects.POST("/subscription", s.authorizeProjectAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
	projects.GET("/invoices", s.authorizeProjectAction(authorization.ObjectBilling, authorization.ActionBillingView), s.ListInvoices)
	projects.GET("/applications", s.authorizeProjectAction(authorization.ObjectBilling, authorization.ActionBillingView), s.ListProjectApplications)
	projects.POST("/applications", s.authorizeProjectAction(authorization.ObjectApplication, authorization.ActionApplicationManage), s.AddProjectApplication)
	projects.DELETE("/applications/:appId", s.authorizeProjectAction(authorization.ObjectApplication, authorization.ActionApplicationManage), s.RemoveProjectApplication)

	// -------- Invoices --------
	invoices := api.Group("/invoices/:invoiceId", s.AuthRequired())
	invoices.GET("/pdf", s.RenderInvoicePDF)
	invoices.POST("/pay", s.PayInvoice)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminTokenRequired())

	admin.POST("/projects", s.OnboardProject)
	admin.GET("/projects/:id", s.GetProject)
	admin.PATCH("/projects/:id", s.UpdateProject)
	admin.DELETE("/projects/:id", s.RemoveProject)
	admin.PUT("/projects/:id/members/:userId", s.SetProjectMember)

	admin.POST("/applications", s.CreateApplication)

	admin.POST("/billing/run", s.RunMonthlyBilling)
	admin.POST("/billing/overdue-sweep", s.RunOverdueSweep)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
