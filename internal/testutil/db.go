// Package testutil builds in-memory control-plane databases for tests.
package testutil

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	billingdomain "github.com/smallbiznis/tenantgate/internal/billing/domain"
	"github.com/smallbiznis/tenantgate/internal/billing/event"
	catalogdomain "github.com/smallbiznis/tenantgate/internal/catalog/domain"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ControlPlaneDB returns a private sqlite database with the full schema.
// It uses a single connection so transactions serialize like they would
// under row locks.
func ControlPlaneDB(t testing.TB) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&tenantdomain.Project{},
		&tenantdomain.ProjectMember{},
		&billingdomain.Subscription{},
		&billingdomain.Invoice{},
		&catalogdomain.Application{},
		&catalogdomain.TenantApplication{},
		&event.BillingEvent{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_active_project ON subscriptions (project_id) WHERE is_active`,
	).Error; err != nil {
		t.Fatalf("partial index: %v", err)
	}
	return conn
}

// TenantDB returns a sqlite database shaped like a tenant store, with a
// users table, plus the DSN that opens it.
func TenantDB(t testing.TB) (*gorm.DB, string) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open tenant sqlite: %v", err)
	}
	sqlDB, _ := conn.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT, is_active BOOLEAN NOT NULL)`).Error; err != nil {
		t.Fatalf("create users: %v", err)
	}
	return conn, dsn
}

// SeedUsers inserts active and inactive users into a tenant database.
func SeedUsers(t testing.TB, conn *gorm.DB, active, inactive int) {
	t.Helper()
	for i := 0; i < active+inactive; i++ {
		if err := conn.Exec(`INSERT INTO users (email, is_active) VALUES (?, ?)`,
			uuid.NewString()+"@example.com", i < active).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
