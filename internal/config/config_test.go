package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "PORT", "EMBEDDING_DIMENSION", "SQL_ENABLED", "POSTGRES_DSN", "TUNNEL_ENABLE")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 0.6, cfg.HybridWeights.Vector)
	assert.Equal(t, 0.4, cfg.HybridWeights.SQL)
	assert.Equal(t, 20, cfg.Thresholds.SKURecallK)
	assert.True(t, cfg.EnableFallbackDatabases)
}

func TestLoad_RejectsZeroEmbeddingDimension(t *testing.T) {
	clearEnv(t, "EMBEDDING_DIMENSION")
	os.Setenv("EMBEDDING_DIMENSION", "0")
	defer os.Unsetenv("EMBEDDING_DIMENSION")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_SQLEnabledRequiresDSNOrTunnel(t *testing.T) {
	clearEnv(t, "SQL_ENABLED", "POSTGRES_DSN", "TUNNEL_ENABLE")
	os.Setenv("SQL_ENABLED", "true")
	defer os.Unsetenv("SQL_ENABLED")
	_, err := Load()
	require.Error(t, err)

	os.Setenv("TUNNEL_ENABLE", "true")
	defer os.Unsetenv("TUNNEL_ENABLE")
	_, err = Load()
	require.NoError(t, err)
}
