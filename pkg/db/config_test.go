package db

import (
	"testing"

	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromRejectsUnsupportedDatabases(t *testing.T) {
	for _, dbType := range []string{"mysql", "MySQL", "", "oracle"} {
		_, err := ConfigFrom(config.Config{DBType: dbType})
		assert.ErrorIs(t, err, ErrUnsupportedDatabase, dbType)
	}

	_, err := Dialect(Config{Type: "mysql"})
	assert.ErrorIs(t, err, ErrUnsupportedDatabase)
}

func TestConfigFromAcceptsUpsertCapableDatabases(t *testing.T) {
	cfg, err := ConfigFrom(config.Config{DBType: " Postgres ", DBName: "rigmarket", DBConnMaxLifetime: 30})
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, int64(30), int64(cfg.ConnMaxLifetime.Seconds()))

	cfg, err = ConfigFrom(config.Config{DBType: "sqlite"})
	require.NoError(t, err)
	dialector, err := Dialect(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dialector.Name())
}
