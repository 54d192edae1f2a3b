package db

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm", gorm.ErrDuplicatedKey, true},
		{"postgres", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"mysql", errors.New("Error 1062: Duplicate entry"), true},
		{"sqlite", errors.New("constraint failed: UNIQUE constraint failed: finance_plans.name"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateKeyErr(tt.err))
		})
	}
}

func TestDialect(t *testing.T) {
	for _, typ := range []string{TypePostgres, TypeMySQL, TypeSQLite} {
		d, err := Dialect(Config{Type: typ, Host: "h", Port: "1", Name: "n"})
		require.NoError(t, err)
		assert.Equal(t, typ, d.Name())
	}
	_, err := Dialect(Config{Type: "oracle"})
	assert.True(t, ierr.IsValidation(err))
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.Config{DBType: "sqlite", DBConnMaxLifetime: 300, DBMetricsEnabled: true, DBSlowQuery: 50 * time.Millisecond})
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, 50*time.Millisecond, cfg.SlowQuery)
	assert.Equal(t, float64(300), cfg.ConnMaxLifetime.Seconds())
	assert.True(t, cfg.MetricsEnabled)
}

func TestNodeIDInRange(t *testing.T) {
	for _, name := range []string{"", "fedbill/prod/a", "fedbill/prod/b"} {
		id := NodeID(name)
		assert.GreaterOrEqual(t, id, int64(0))
		assert.Less(t, id, int64(1024))
	}
	assert.Equal(t, NodeID("x"), NodeID("x"))
}
