package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector/internal/config"
	"connector/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host: "db", Port: 5432, User: "connector", Password: "secret", DBName: "connector",
	})
	assert.Equal(t, "postgres://connector:secret@db:5432/connector?sslmode=disable", dsn)
}

func TestOptionalStoresAreSkipped(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())
	ctx := context.Background()

	db, err := dc.InitPostgreSQL(ctx)
	require.NoError(t, err)
	assert.Nil(t, db)

	rdb, err := dc.InitRedis(ctx)
	require.NoError(t, err)
	assert.Nil(t, rdb)

	client, err := dc.InitMongoDB(ctx)
	require.NoError(t, err)
	assert.Nil(t, client)
}
