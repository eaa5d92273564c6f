package db

import (
	"time"

	"github.com/smallbiznis/tenantgate/internal/config"
)

// PoolConfig bounds the connection pool of a gorm handle.
type PoolConfig struct {
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func ControlPlanePool(cfg config.Config) PoolConfig {
	return PoolConfig{
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
}

// TenantPool is deliberately small: one process may hold a handle per tenant.
func TenantPool() PoolConfig {
	return PoolConfig{
		MaxIdleConn:     2,
		MaxOpenConn:     10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}
