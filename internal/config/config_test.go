package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabostat/domain/stats"
	"metabostat/internal/errors"
	"metabostat/internal/preprocess"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, stats.InteractionPairwise, cfg.Analysis.Interaction)
	assert.Equal(t, 0.05, cfg.Analysis.Alpha)
	assert.Equal(t, 1000, cfg.Permutation.Iterations)
	assert.Equal(t, 100, cfg.Permutation.ProgressEvery)
	assert.Equal(t, preprocess.NormalizePercentile, cfg.Preprocess.Normalization)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analysis:
  variables: [tissue, age]
  interaction: full
  alpha: 0.1
permutation:
  permute: [age]
  iterations: 50
  seed: 7
  timeout: 90s
preprocess:
  normalization: standard
  z_score: true
`), 0o644))

	t.Setenv("METABOSTAT_ITERATIONS", "20")
	t.Setenv("METABOSTAT_INTERACTION", "no")
	t.Setenv("METABOSTAT_WORKERS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"tissue", "age"}, cfg.Analysis.Variables)
	assert.Equal(t, stats.InteractionNone, cfg.Analysis.Interaction, "environment overrides the file")
	assert.Equal(t, 0.1, cfg.Analysis.Alpha)
	assert.Equal(t, []string{"age"}, cfg.Permutation.Permute)
	assert.Equal(t, 20, cfg.Permutation.Iterations)
	assert.Equal(t, int64(7), cfg.Permutation.Seed)
	assert.Equal(t, 90*time.Second, cfg.Permutation.Timeout)
	assert.Equal(t, 3, cfg.Runtime.Workers)
	assert.Equal(t, preprocess.NormalizeStandard, cfg.Preprocess.Normalization)
	assert.True(t, cfg.Preprocess.ZScore)
	assert.True(t, cfg.Preprocess.PurgeControl, "unset file keys keep their defaults")
}

func TestLoadEnvLists(t *testing.T) {
	t.Setenv("METABOSTAT_VARIABLES", " tissue, ,age ")
	t.Setenv("METABOSTAT_PERMUTE", "tissue")
	t.Setenv("METABOSTAT_TIMEOUT", "2m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"tissue", "age"}, cfg.Analysis.Variables)
	assert.Equal(t, []string{"tissue"}, cfg.Permutation.Permute)
	assert.Equal(t, 2*time.Minute, cfg.Permutation.Timeout)
	assert.Equal(t, "debug", cfg.Runtime.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Equal(t, errors.CodeIO, errors.GetCode(err))
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("analysis: [unclosed"), 0o644))
		_, err := Load(path)
		assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	})

	t.Run("bad interaction", func(t *testing.T) {
		t.Setenv("METABOSTAT_INTERACTION", "triple")
		_, err := Load("")
		assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	})

	t.Run("alpha out of range", func(t *testing.T) {
		t.Setenv("METABOSTAT_ALPHA", "1.5")
		_, err := Load("")
		assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	})

	malformed := []struct {
		key, value string
	}{
		{"METABOSTAT_SEED", "seven"},
		{"METABOSTAT_SEED", "1.5"},
		{"METABOSTAT_ITERATIONS", "1e3"},
		{"METABOSTAT_ALPHA", "five percent"},
		{"METABOSTAT_TIMEOUT", "30"},
		{"METABOSTAT_WORKERS", "many"},
		{"METABOSTAT_PROGRESS_EVERY", "10x"},
	}
	for _, tc := range malformed {
		t.Run("malformed "+tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load("")
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative iterations", func(c *Config) { c.Permutation.Iterations = -1 }},
		{"negative workers", func(c *Config) { c.Runtime.Workers = -2 }},
		{"negative timeout", func(c *Config) { c.Permutation.Timeout = -time.Second }},
		{"zero alpha", func(c *Config) { c.Analysis.Alpha = 0 }},
		{"bad mode", func(c *Config) { c.Analysis.Interaction = stats.InteractionMode(9) }},
		{"bad quantile", func(c *Config) { c.Preprocess.Quantile = 0 }},
		{"permuted not analysed", func(c *Config) {
			c.Analysis.Variables = []string{"tissue", "age"}
			c.Permutation.Permute = []string{"sex"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}

	require.NoError(t, Default().Validate())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("METABOSTAT_SEED=99\n"), 0o644))
	t.Setenv("METABOSTAT_SEED", "")
	os.Unsetenv("METABOSTAT_SEED")

	LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env"))
	t.Cleanup(func() { os.Unsetenv("METABOSTAT_SEED") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Permutation.Seed)
}
