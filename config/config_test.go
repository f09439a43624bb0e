package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artregistry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "artworks.db", cfg.DatabasePath)
	assert.Equal(t, ":8487", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.NonceTTL)
	assert.Equal(t, 0.5, cfg.Similarity.HashWeight)
	assert.Equal(t, 85.0, cfg.Similarity.DuplicateThreshold)
	assert.Equal(t, 60.0, cfg.Similarity.ModifiedThreshold)
	assert.Equal(t, 50, cfg.Similarity.CandidateLimit)
	assert.Equal(t, 5, cfg.Similarity.TopMatches)
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
databasePath: /var/lib/artregistry/registry.db
listenAddr: ":9000"
nonceTTL: 90s
similarity:
  hashWeight: 0.6
  colorWeight: 0.2
  structuralWeight: 0.2
  duplicateThreshold: 90
  modifiedThreshold: 70
  candidateLimit: 25
  topMatches: 3
`)

	cfg, loaded, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, path, loaded)
	assert.Equal(t, "/var/lib/artregistry/registry.db", cfg.DatabasePath)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 90*time.Second, cfg.NonceTTL)
	assert.Equal(t, 0.6, cfg.Similarity.HashWeight)
	assert.Equal(t, 90.0, cfg.Similarity.DuplicateThreshold)
	assert.Equal(t, 25, cfg.Similarity.CandidateLimit)
	assert.Equal(t, 3, cfg.Similarity.TopMatches)
}

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `listenAddr: ":9001"`)

	cfg, _, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.ListenAddr)
	assert.Equal(t, "artworks.db", cfg.DatabasePath)
	assert.Equal(t, 0.5, cfg.Similarity.HashWeight)
	assert.Equal(t, 0.25, cfg.Similarity.ColorWeight)
	assert.Equal(t, 0.25, cfg.Similarity.StructuralWeight)
}

func TestLoadFromPathRejectsBadWeights(t *testing.T) {
	path := writeConfig(t, `
similarity:
  hashWeight: 0.8
  colorWeight: 0.3
  structuralWeight: 0.3
`)

	_, _, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights sum")
}

func TestLoadFromPathRejectsInvertedThresholds(t *testing.T) {
	path := writeConfig(t, `
similarity:
  duplicateThreshold: 50
  modifiedThreshold: 70
`)

	_, _, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestLoadFromPathRejectsGarbage(t *testing.T) {
	path := writeConfig(t, "similarity: [not, a, map")

	_, _, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	path := writeConfig(t, `listenAddr: ":7777"`)
	t.Setenv("ARTREGISTRY_CONFIG", path)

	cfg, loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, ":7777", cfg.ListenAddr)
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	t.Setenv("ARTREGISTRY_CONFIG", "")
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	cfg, loaded, err := Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
	assert.Equal(t, DefaultConfig(), cfg)
}
