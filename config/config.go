// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Cache     CacheConfig     `yaml:"cache"`
	Models    []ModelConfig   `yaml:"models"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	// "*" echoes any origin but never allows credentials.
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ArtifactsConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Watch      bool   `yaml:"watch"`
}

// CacheConfig sizes the per-model prediction cache; 0 disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// ModelConfig is one entry of the static model catalog. FeatureCount is
// what request bodies are validated against.
type ModelConfig struct {
	Name         string `yaml:"name"`
	FeatureCount int    `yaml:"feature_count"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           8000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Artifacts: ArtifactsConfig{
			Backend: BackendFile,
			Dir:     "app/ml/saved_models",
		},
		Models: []ModelConfig{
			{Name: "iris", FeatureCount: 4},
			{Name: "diabetes", FeatureCount: 10},
		},
	}
}

// Load reads path on top of Default and applies MLAPP_* overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.HTTP.Port, err = getEnvInt("MLAPP_PORT", c.HTTP.Port)
	if err != nil {
		return err
	}
	c.HTTP.Timeout, err = getEnvDuration("MLAPP_TIMEOUT", c.HTTP.Timeout)
	if err != nil {
		return err
	}
	if origins := getEnv("MLAPP_ALLOWED_ORIGINS", ""); origins != "" {
		c.HTTP.AllowedOrigins = splitList(origins)
	}
	c.Log.Level = getEnv("MLAPP_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("MLAPP_LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("MLAPP_LOG_FILE", c.Log.File)
	c.Artifacts.Backend = getEnv("MLAPP_ARTIFACT_BACKEND", c.Artifacts.Backend)
	c.Artifacts.Dir = getEnv("MLAPP_MODEL_DIR", c.Artifacts.Dir)
	c.Artifacts.SQLitePath = getEnv("MLAPP_SQLITE_PATH", c.Artifacts.SQLitePath)
	c.Artifacts.Watch, err = getEnvBool("MLAPP_WATCH", c.Artifacts.Watch)
	if err != nil {
		return err
	}
	c.Cache.Size, err = getEnvInt("MLAPP_CACHE_SIZE", c.Cache.Size)
	return err
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.Timeout < 0 {
		errs = multierr.Append(errs, errors.New("http.timeout must not be negative"))
	}
	if c.Cache.Size < 0 {
		errs = multierr.Append(errs, errors.New("cache.size must not be negative"))
	}
	switch c.Artifacts.Backend {
	case BackendFile:
		if c.Artifacts.Dir == "" {
			errs = multierr.Append(errs, errors.New("artifacts.dir is required for the file backend"))
		}
	case BackendSQLite:
		if c.Artifacts.SQLitePath == "" {
			errs = multierr.Append(errs, errors.New("artifacts.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown artifacts.backend %q", c.Artifacts.Backend))
	}

	if len(c.Models) == 0 {
		errs = multierr.Append(errs, errors.New("at least one model is required"))
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		switch {
		case m.Name == "":
			errs = multierr.Append(errs, fmt.Errorf("models[%d]: name is required", i))
		case seen[m.Name]:
			errs = multierr.Append(errs, fmt.Errorf("models[%d]: duplicate name %q", i, m.Name))
		}
		seen[m.Name] = true
		if m.FeatureCount <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("models[%d]: feature_count must be positive", i))
		}
	}
	return errs
}

// FeatureCounts maps model name to its expected feature count.
func (c Config) FeatureCounts() map[string]int {
	counts := make(map[string]int, len(c.Models))
	for _, m := range c.Models {
		counts[m.Name] = m.FeatureCount
	}
	return counts
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
