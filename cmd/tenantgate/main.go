package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantgate/internal/authorization"
	"github.com/smallbiznis/tenantgate/internal/billing"
	"github.com/smallbiznis/tenantgate/internal/catalog"
	"github.com/smallbiznis/tenantgate/internal/clock"
	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/invoicedoc"
	"github.com/smallbiznis/tenantgate/internal/lock"
	"github.com/smallbiznis/tenantgate/internal/migration"
	"github.com/smallbiznis/tenantgate/internal/observability"
	"github.com/smallbiznis/tenantgate/internal/payment"
	"github.com/smallbiznis/tenantgate/internal/resolver"
	"github.com/smallbiznis/tenantgate/internal/scheduler"
	"github.com/smallbiznis/tenantgate/internal/server"
	"github.com/smallbiznis/tenantgate/internal/storage"
	"github.com/smallbiznis/tenantgate/internal/tenant"
	"github.com/smallbiznis/tenantgate/internal/tenantdb"
	"github.com/smallbiznis/tenantgate/internal/vault"
	"github.com/smallbiznis/tenantgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		vault.Module,
		lock.Module,

		// Tenant plumbing
		tenantdb.Module,
		storage.Module,
		tenant.Module,
		resolver.Module,

		// Billing
		payment.Module,
		billing.Module,
		catalog.Module,
		invoicedoc.Module,
		authorization.Module,
		scheduler.Module,
		fx.Provide(func(s *scheduler.Scheduler) server.JobTrigger { return s }),

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
