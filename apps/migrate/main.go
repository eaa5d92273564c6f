package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/migration"
	"github.com/smallbiznis/tenantgate/internal/observability"
	"github.com/smallbiznis/tenantgate/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the embedded control-plane migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withControlPlane(cmd.Context(), timeout, applyAndReport)
		},
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for connecting and migrating")

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version without migrating",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withControlPlane(cmd.Context(), timeout, report)
		},
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

type step func(sqlDB *sql.DB, log *zap.Logger) error

// withControlPlane starts just enough of the fx graph to hold a control
// plane connection, runs fn and tears the graph down again.
func withControlPlane(parent context.Context, timeout time.Duration, fn step) error {
	var (
		conn *gorm.DB
		log  *zap.Logger
	)
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		fx.Populate(&conn, &log),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(ctx) }()

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("control plane handle: %w", err)
	}
	return fn(sqlDB, log)
}

func applyAndReport(sqlDB *sql.DB, log *zap.Logger) error {
	if err := migration.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return report(sqlDB, log)
}

func report(sqlDB *sql.DB, log *zap.Logger) error {
	version, dirty, err := migration.Version(sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Info("control plane schema", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
