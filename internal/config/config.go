// Package config loads annealflow settings from a YAML file with
// ANNEALFLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/inference"
	"github.com/quantumflow/annealflow/internal/learning"
	"github.com/quantumflow/annealflow/internal/store"
)

// Generator kinds
const (
	GeneratorOllama   = "ollama"
	GeneratorTemplate = "template"
)

// Config is the complete application configuration
type Config struct {
	Engine    anneal.Config             `yaml:"engine"`
	Learning  learning.LearnerConfig    `yaml:"learning"`
	Tracker   learning.TrackerConfig    `yaml:"tracker"`
	Generator GeneratorConfig           `yaml:"generator"`
	Inference inference.Config          `yaml:"inference"`
	Sampling  inference.GeneratorConfig `yaml:"sampling"`
	Store     store.Config              `yaml:"store"`
	Pool      PoolConfig                `yaml:"pool"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Log       LogConfig                 `yaml:"log"`
	Defaults  AgentDefaults             `yaml:"defaults"`
}

// GeneratorConfig selects the candidate generator
type GeneratorConfig struct {
	Kind string `yaml:"kind"` // ollama or template
}

// PoolConfig sizes the batch execution pool
type PoolConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AgentDefaults are used for tunables not given when creating an agent
type AgentDefaults struct {
	TemperatureScale float64 `yaml:"temperature_scale"`
	CreativityBias   float64 `yaml:"creativity_bias"`
	MaxIterations    int     `yaml:"max_iterations"`
	LearningRate     float64 `yaml:"learning_rate"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Engine:    anneal.DefaultConfig(),
		Learning:  learning.DefaultLearnerConfig(),
		Tracker:   learning.DefaultTrackerConfig(),
		Generator: GeneratorConfig{Kind: GeneratorOllama},
		Inference: *inference.DefaultConfig(),
		Sampling:  inference.DefaultGeneratorConfig(),
		Store:     store.DefaultConfig(),
		Pool: PoolConfig{
			Workers:         2,
			QueueSize:       100,
			ShutdownTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Defaults: AgentDefaults{
			TemperatureScale: 0.5,
			CreativityBias:   0.5,
			MaxIterations:    10,
			LearningRate:     0.1,
		},
	}
}

// DefaultPath returns ~/.annealflow/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "annealflow.yaml"
	}
	return filepath.Join(home, ".annealflow", "config.yaml")
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write saves cfg as YAML at path, creating the directory
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnv() {
	envString("ANNEALFLOW_GENERATOR", &c.Generator.Kind)
	envString("ANNEALFLOW_OLLAMA_URL", &c.Inference.OllamaURL)
	envString("ANNEALFLOW_MODEL", &c.Inference.Model)
	envDuration("ANNEALFLOW_INFERENCE_TIMEOUT", &c.Inference.Timeout)
	envFloat("ANNEALFLOW_REQUESTS_PER_SECOND", &c.Sampling.RequestsPerSecond)

	envString("ANNEALFLOW_STORE_BACKEND", &c.Store.Backend)
	envString("ANNEALFLOW_STORE_PATH", &c.Store.Path)
	envString("ANNEALFLOW_REDIS_URL", &c.Store.RedisURL)
	envString("ANNEALFLOW_REDIS_PASSWORD", &c.Store.RedisPassword)
	envInt("ANNEALFLOW_REDIS_DB", &c.Store.RedisDB)
	envString("ANNEALFLOW_DGRAPH_URL", &c.Store.DgraphURL)

	envFloat("ANNEALFLOW_NOISE_AMPLITUDE", &c.Engine.NoiseAmplitude)
	envFloat("ANNEALFLOW_SUCCESS_THRESHOLD", &c.Engine.SuccessThreshold)

	envInt("ANNEALFLOW_POOL_WORKERS", &c.Pool.Workers)
	envBool("ANNEALFLOW_METRICS_ENABLED", &c.Metrics.Enabled)
	envString("ANNEALFLOW_METRICS_ADDR", &c.Metrics.Addr)

	envString("ANNEALFLOW_LOG_LEVEL", &c.Log.Level)
	envString("ANNEALFLOW_LOG_FORMAT", &c.Log.Format)
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.InitialTemperature <= 0 {
		errs = append(errs, errors.New("engine.initial_temperature must be positive"))
	}
	if c.Engine.CoolingRate <= 0 || c.Engine.CoolingRate >= 1 {
		errs = append(errs, errors.New("engine.cooling_rate must be in (0, 1)"))
	}
	if c.Engine.MinTemperature <= 0 {
		errs = append(errs, errors.New("engine.min_temperature must be positive"))
	}
	if c.Engine.SuccessThreshold < 0 || c.Engine.SuccessThreshold > 1 {
		errs = append(errs, errors.New("engine.success_threshold must be in [0, 1]"))
	}
	if c.Engine.NoiseAmplitude < 0 {
		errs = append(errs, errors.New("engine.noise_amplitude must not be negative"))
	}
	if c.Learning.HistoryWindow <= 0 {
		errs = append(errs, errors.New("learning.history_window must be positive"))
	}
	if c.Tracker.TaskHistoryLimit <= 0 || c.Tracker.TrendWindow <= 0 || c.Tracker.ProgressTarget <= 0 {
		errs = append(errs, errors.New("tracker limits must be positive"))
	}

	switch c.Generator.Kind {
	case GeneratorOllama:
		if c.Inference.OllamaURL == "" || c.Inference.Model == "" {
			errs = append(errs, errors.New("inference.ollama_url and inference.model are required for the ollama generator"))
		}
	case GeneratorTemplate:
	default:
		errs = append(errs, fmt.Errorf("unknown generator kind %q", c.Generator.Kind))
	}

	switch c.Store.Backend {
	case store.BackendMemory, store.BackendRedis, store.BackendDgraph:
	case store.BackendFile, store.BackendBadger, store.BackendSQLite, "":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the %s backend", c.Store.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	if c.Pool.Workers <= 0 || c.Pool.QueueSize <= 0 {
		errs = append(errs, errors.New("pool.workers and pool.queue_size must be positive"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func envDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
