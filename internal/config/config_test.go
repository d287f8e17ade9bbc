package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.4, cfg.Router.Thresholds[0])
	assert.Equal(t, 0.7, cfg.Router.Thresholds[1])
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
evolution:
  max_generations: 10
  convergence_similarity: 0.9
  max_retries: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Evolution.MaxGenerations)
	assert.Equal(t, 0.9, cfg.Evolution.ConvergenceSimilarity)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.4, cfg.Router.Thresholds[0])
}

func TestValidate_RejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Router.Weights.Tokens = 0.9
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadThresholdOrder(t *testing.T) {
	cfg := Default()
	cfg.Router.Thresholds = [2]float64{0.8, 0.2}
	assert.Error(t, cfg.Validate())
}
