package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDialectFromDSN(t *testing.T) {
	cases := []struct {
		dsn  string
		name string
	}{
		{dsn: "postgres://u:p@localhost:5432/acme", name: "postgres"},
		{dsn: "host=db user=u password=p dbname=acme port=5432", name: "postgres"},
		{dsn: "mysql://u:p@tcp(localhost:3306)/acme", name: "mysql"},
		{dsn: "file:acme?mode=memory&cache=shared", name: "sqlite"},
		{dsn: "sqlite://acme.db", name: "sqlite"},
	}
	for _, tc := range cases {
		t.Run(tc.dsn, func(t *testing.T) {
			d, err := DialectFromDSN(tc.dsn)
			require.NoError(t, err)
			assert.Equal(t, tc.name, d.Name())
		})
	}

	_, err := DialectFromDSN("redis://localhost")
	assert.True(t, errors.Is(err, ErrUnsupportedDSN))
	_, err = DialectFromDSN("  ")
	assert.True(t, errors.Is(err, ErrUnsupportedDSN))
}

func TestOpenTenantPingsSQLite(t *testing.T) {
	conn, err := OpenTenant(context.Background(), "file:opentenant_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(conn) })

	require.NoError(t, conn.Exec("CREATE TABLE probe (id INTEGER)").Error)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: projects.slug")))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}
