package container

import (
	"context"
	"testing"

	"imss/harvester/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutOptionalSinks(t *testing.T) {
	cfg := &config.Config{
		Source: config.SourceConfig{
			BaseURL:              "http://compras.imss.gob.mx",
			Timeout:              5,
			MaxRequestsPerSecond: 1,
		},
		Harvest: config.HarvestConfig{
			Output:    "file",
			OutputDir: t.TempDir(),
		},
	}

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Service)
	assert.NotNil(t, app.Client)
	assert.NotNil(t, app.Store)
	assert.Nil(t, app.Repository)
	assert.Nil(t, app.Queue)
	assert.Nil(t, app.Progress)
}

func TestNewFailsWhenRedisIsUnreachable(t *testing.T) {
	cfg := &config.Config{
		Source:  config.SourceConfig{BaseURL: "http://compras.imss.gob.mx"},
		Harvest: config.HarvestConfig{OutputDir: t.TempDir()},
		Redis:   config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1},
	}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
