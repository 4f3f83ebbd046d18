package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"metabostat/domain/stats"
	"metabostat/internal/errors"
	"metabostat/internal/preprocess"
)

// Config represents the complete application configuration
type Config struct {
	Analysis    AnalysisConfig     `json:"analysis" yaml:"analysis"`
	Permutation PermutationConfig  `json:"permutation" yaml:"permutation"`
	Preprocess  preprocess.Options `json:"preprocess" yaml:"preprocess"`
	Runtime     RuntimeConfig      `json:"runtime" yaml:"runtime"`
}

// AnalysisConfig holds the model and correction settings
type AnalysisConfig struct {
	Variables   []string              `json:"variables" yaml:"variables"`
	Interaction stats.InteractionMode `json:"interaction" yaml:"interaction"`
	Alpha       float64               `json:"alpha" yaml:"alpha"`
	Sheet       string                `json:"sheet" yaml:"sheet"`
}

// PermutationConfig holds the permutation test settings
type PermutationConfig struct {
	Permute       []string      `json:"permute" yaml:"permute"`
	Iterations    int           `json:"iterations" yaml:"iterations"`
	Seed          int64         `json:"seed" yaml:"seed"`
	ProgressEvery int           `json:"progress_every" yaml:"progress_every"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

// RuntimeConfig holds process-level settings
type RuntimeConfig struct {
	Workers  int    `json:"workers" yaml:"workers"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Default returns the configuration used when neither a file nor the environment says otherwise
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Interaction: stats.InteractionPairwise,
			Alpha:       0.05,
		},
		Permutation: PermutationConfig{
			Iterations:    1000,
			ProgressEvery: 100,
		},
		Preprocess: preprocess.DefaultOptions(),
		Runtime: RuntimeConfig{
			LogLevel: "INFO",
		},
	}
}

// LoadDotEnv loads .env files into the environment. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	for _, p := range dotEnvPaths(paths) {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func dotEnvPaths(paths []string) []string {
	if len(paths) == 0 {
		return []string{".env"}
	}
	return paths
}

// Load builds the configuration from defaults, then the optional YAML file at path, then
// METABOSTAT_* environment variables, and validates the result
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, errors.Wrap(err, "failed to read environment configuration")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.IOError(path, err)
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("%s: %v", path, err))
	}
	return nil
}

func applyEnv(config *Config) error {
	if v := getEnvListOrDefault("METABOSTAT_VARIABLES", nil); v != nil {
		config.Analysis.Variables = v
	}
	if v := os.Getenv("METABOSTAT_INTERACTION"); v != "" {
		mode, err := stats.ParseInteractionMode(v)
		if err != nil {
			return errors.ConfigInvalid(fmt.Sprintf("METABOSTAT_INTERACTION: %v", err))
		}
		config.Analysis.Interaction = mode
	}
	var err error
	if config.Analysis.Alpha, err = getEnvFloat("METABOSTAT_ALPHA", config.Analysis.Alpha); err != nil {
		return err
	}
	config.Analysis.Sheet = getEnvOrDefault("METABOSTAT_SHEET", config.Analysis.Sheet)

	if v := getEnvListOrDefault("METABOSTAT_PERMUTE", nil); v != nil {
		config.Permutation.Permute = v
	}
	if config.Permutation.Iterations, err = getEnvInt("METABOSTAT_ITERATIONS", config.Permutation.Iterations); err != nil {
		return err
	}
	if config.Permutation.Seed, err = getEnvInt64("METABOSTAT_SEED", config.Permutation.Seed); err != nil {
		return err
	}
	if config.Permutation.ProgressEvery, err = getEnvInt("METABOSTAT_PROGRESS_EVERY", config.Permutation.ProgressEvery); err != nil {
		return err
	}
	if config.Permutation.Timeout, err = getEnvDuration("METABOSTAT_TIMEOUT", config.Permutation.Timeout); err != nil {
		return err
	}

	if config.Runtime.Workers, err = getEnvInt("METABOSTAT_WORKERS", config.Runtime.Workers); err != nil {
		return err
	}
	config.Runtime.LogLevel = getEnvOrDefault("LOG_LEVEL", config.Runtime.LogLevel)
	return nil
}

// Validate checks ranges and cross-field constraints
func (c *Config) Validate() error {
	if !c.Analysis.Interaction.Valid() {
		return errors.ConfigInvalid(fmt.Sprintf("unknown interaction mode %d", int(c.Analysis.Interaction)))
	}
	if !(c.Analysis.Alpha > 0 && c.Analysis.Alpha < 1) {
		return errors.ConfigInvalid(fmt.Sprintf("alpha must lie in (0, 1), got %v", c.Analysis.Alpha))
	}
	if c.Permutation.Iterations < 0 {
		return errors.ConfigInvalid("iterations must not be negative")
	}
	if c.Permutation.ProgressEvery < 0 {
		return errors.ConfigInvalid("progress_every must not be negative")
	}
	if c.Permutation.Timeout < 0 {
		return errors.ConfigInvalid("timeout must not be negative")
	}
	if c.Runtime.Workers < 0 {
		return errors.ConfigInvalid("workers must not be negative")
	}
	if len(c.Permutation.Permute) > 0 && len(c.Analysis.Variables) > 0 {
		vars := make(map[string]bool, len(c.Analysis.Variables))
		for _, v := range c.Analysis.Variables {
			vars[v] = true
		}
		for _, p := range c.Permutation.Permute {
			if !vars[p] {
				return errors.ConfigInvalid(fmt.Sprintf("permuted variable %q is not an analysis variable", p))
			}
		}
	}
	if q := c.Preprocess.Quantile; c.Preprocess.Normalization == preprocess.NormalizePercentile && !(q > 0 && q <= 1) {
		return errors.ConfigInvalid(fmt.Sprintf("preprocess quantile must lie in (0, 1], got %v", q))
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// The numeric getters keep the current value when the variable is unset and reject
// values that do not parse.
func getEnvInt(key string, current int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return current, nil
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return current, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not an integer", key, value))
	}
	return intValue, nil
}

func getEnvInt64(key string, current int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return current, nil
	}
	intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return current, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not an integer", key, value))
	}
	return intValue, nil
}

func getEnvFloat(key string, current float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return current, nil
	}
	floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return current, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not a number", key, value))
	}
	return floatValue, nil
}

func getEnvDuration(key string, current time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return current, nil
	}
	duration, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return current, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not a duration", key, value))
	}
	return duration, nil
}

// getEnvListOrDefault splits a comma separated value, dropping empty items
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
