package tenantdb

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// DSNLookup yields the decrypted database DSN of a project.
type DSNLookup interface {
	TenantDSN(ctx context.Context, projectID snowflake.ID) (string, error)
}

// UsageCounter reports billable usage stored in a tenant database.
type UsageCounter interface {
	CountActiveUsers(ctx context.Context, projectID snowflake.ID) (int64, error)
}

type usageCounter struct {
	registry *Registry
	lookup   DSNLookup
}

func NewUsageCounter(registry *Registry, lookup DSNLookup) UsageCounter {
	return &usageCounter{registry: registry, lookup: lookup}
}

func (u *usageCounter) CountActiveUsers(ctx context.Context, projectID snowflake.ID) (int64, error) {
	dsn, err := u.lookup.TenantDSN(ctx, projectID)
	if err != nil {
		return 0, err
	}

	conn, err := u.registry.Get(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("tenant database for project %s: %w", projectID, err)
	}

	var count int64
	if err := conn.WithContext(ctx).
		Table("users").
		Where("is_active = ?", true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return count, nil
}
