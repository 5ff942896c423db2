package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/oncopredict/oncopredict/pkg/risk"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the name of the config file inside the app directory.
	FileName = "config.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ONCOPREDICT_"

	dirMode  = 0700
	fileMode = 0600
)

// Config represents the app config object.
type Config struct {
	Server    Server    `yaml:"server" envPrefix:"SERVER_"`
	Scorer    Scorer    `yaml:"scorer" envPrefix:"SCORER_"`
	Normalize Normalize `yaml:"normalize" envPrefix:"NORMALIZE_"`
	TCGA      TCGA      `yaml:"tcga" envPrefix:"TCGA_"`
	Store     Store     `yaml:"store" envPrefix:"STORE_"`
	Log       Log       `yaml:"log" envPrefix:"LOG_"`
}

type Server struct {
	Address         string        `yaml:"address" env:"ADDRESS"`
	Port            int           `yaml:"port" env:"PORT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Scorer configures the out-of-process scoring engine.
type Scorer struct {
	Java          string        `yaml:"java" env:"JAVA"`
	Jar           string        `yaml:"jar" env:"JAR"`
	Class         string        `yaml:"class" env:"CLASS"`
	WorkDir       string        `yaml:"work_dir" env:"WORK_DIR"`
	Output        string        `yaml:"output" env:"OUTPUT"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxConcurrent int           `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
}

// Normalize controls categorical normalization. Strict rejects values the
// engine vocabulary does not cover instead of forwarding them.
type Normalize struct {
	Strict bool `yaml:"strict" env:"STRICT"`
}

type TCGA struct {
	ModelsDir string `yaml:"models_dir" env:"MODELS_DIR"`
}

// Store configures the prediction history database. An empty path
// disables recording.
type Store struct {
	Path string `yaml:"path" env:"PATH"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the configuration used when no file exists. Paths are
// relative to dir.
func Default(dir string) *Config {
	return &Config{
		Server: Server{
			Address:         "127.0.0.1",
			Port:            8000,
			AllowedOrigins:  []string{"http://localhost:5173", "http://127.0.0.1:5173"},
			Timeout:         300 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Scorer: Scorer{
			Java:          "java",
			Jar:           filepath.Join(dir, "models", "h2o-genmodel.jar"),
			Class:         "ModelScorer",
			WorkDir:       dir,
			Output:        string(risk.VariantValue),
			Timeout:       30 * time.Second,
			MaxConcurrent: 4,
		},
		TCGA: TCGA{
			ModelsDir: filepath.Join(dir, "models", "tcga"),
		},
		Store: Store{
			Path: filepath.Join(dir, "data.db"),
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if _, err := risk.ParseVariant(c.Scorer.Output); err != nil {
		return err
	}
	if c.Scorer.MaxConcurrent <= 0 {
		return fmt.Errorf("scorer.max_concurrent must be positive, got %d", c.Scorer.MaxConcurrent)
	}
	if c.Scorer.Timeout <= 0 {
		return fmt.Errorf("scorer.timeout must be positive, got %s", c.Scorer.Timeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "cli":
	default:
		return fmt.Errorf("unknown log.format: %q", c.Log.Format)
	}
	return nil
}

// Save writes c to dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, FileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from dirPath, creating the directory and a
// default file when missing, then applies environment overrides.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default(dirPath)); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return Read(path)
}

// Read loads the config file at path on top of the defaults for its
// directory, then applies environment overrides.
func Read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default(filepath.Dir(path))
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}

	if err := ApplyEnv(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides c with ONCOPREDICT_* environment variables.
func ApplyEnv(c *Config) error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// GetOrCreateHomeDir returns the app directory under the user's home.
// The created flag is set when the directory did not exist.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
