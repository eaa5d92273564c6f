package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tenantgate/internal/billing"
	"github.com/smallbiznis/tenantgate/internal/clock"
	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/lock"
	"github.com/smallbiznis/tenantgate/internal/observability"
	"github.com/smallbiznis/tenantgate/internal/payment"
	"github.com/smallbiznis/tenantgate/internal/scheduler"
	"github.com/smallbiznis/tenantgate/internal/storage"
	"github.com/smallbiznis/tenantgate/internal/tenant"
	"github.com/smallbiznis/tenantgate/internal/tenantdb"
	"github.com/smallbiznis/tenantgate/internal/vault"
	"github.com/smallbiznis/tenantgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Runs the billing scheduler without the HTTP surface. Replicas coordinate
// through the redis lock when REDIS_ADDR is set.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		vault.Module,
		lock.Module,

		// Usage counting reaches into tenant databases.
		tenantdb.Module,
		storage.Module,
		tenant.Module,

		payment.Module,
		billing.Module,

		// Billing jobs only; the API binary owns the HTTP surface.
		scheduler.Module,
		fx.Invoke(ServeMetrics),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// ServeMetrics exposes /metrics and /health so the scheduler can be scraped
// and probed.
func ServeMetrics(lc fx.Lifecycle, cfg config.Config, obsCfg observability.Config, log *zap.Logger) {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics listener stopped", zap.Error(err))
				}
			}()
			log.Info("scheduler metrics listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
