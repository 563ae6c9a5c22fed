package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesOriginalDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1_000_000, cfg.TokenLimit)
	assert.Equal(t, "gpt-4", cfg.Model)
	assert.Equal(t, 10000, cfg.MaxActiveSegments)
	assert.True(t, cfg.EnableIndexing)
	assert.True(t, cfg.EnableSharding)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("MEMORIA_TOKEN_LIMIT", "5000")
	t.Setenv("MEMORIA_MODEL", "gpt-4o")
	cfg := Load(nil)
	assert.Equal(t, 5000, cfg.TokenLimit)
	assert.Equal(t, "gpt-4o", cfg.Model)
}

func TestLoad_InvalidEnvIntIsIgnored(t *testing.T) {
	t.Setenv("MEMORIA_TOKEN_LIMIT", "not-a-number")
	cfg := Load(nil)
	assert.Equal(t, Default().TokenLimit, cfg.TokenLimit)
}

func TestLoad_ConfigFilePrecedesDefaultsButNotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	require.NoError(t, os.Mkdir(".memoria", 0o755))
	require.NoError(t, os.WriteFile(".memoria/config.json", []byte(`{"token_limit": 2000}`), 0o644))
	t.Setenv("MEMORIA_TOKEN_LIMIT", "9000")

	cfg := Load(nil)
	assert.Equal(t, 9000, cfg.TokenLimit) // env wins over file
}
