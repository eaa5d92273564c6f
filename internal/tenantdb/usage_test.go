package tenantdb

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLookup map[snowflake.ID]string

func (s staticLookup) TenantDSN(_ context.Context, projectID snowflake.ID) (string, error) {
	dsn, ok := s[projectID]
	if !ok {
		return "", errors.New("not found")
	}
	return dsn, nil
}

func TestCountActiveUsers(t *testing.T) {
	dsn := "file:usage_count_test?mode=memory&cache=shared"
	reg := NewRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.EvictAll() })

	conn, err := reg.Get(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, conn.Exec("CREATE TABLE users (id INTEGER PRIMARY KEY, is_active BOOLEAN NOT NULL)").Error)
	require.NoError(t, conn.Exec("INSERT INTO users (id, is_active) VALUES (1, 1), (2, 1), (3, 0)").Error)

	counter := NewUsageCounter(reg, staticLookup{7: dsn})
	n, err := counter.CountActiveUsers(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(1), reg.Constructed())
}

func TestCountActiveUsersPropagatesLookupError(t *testing.T) {
	counter := NewUsageCounter(NewRegistry(nil, nil), staticLookup{})
	_, err := counter.CountActiveUsers(context.Background(), 1)
	require.Error(t, err)
}
