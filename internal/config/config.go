// Package config loads the settings shared by the pipeline stages and the
// inference server.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
)

// EnvPrefix prefixes every environment override except PORT and FRONTEND_URL.
const EnvPrefix = "LIVERRISK_"

// Config holds all liverrisk configuration.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Split     SplitConfig     `yaml:"split"`
	Tuning    TuningConfig    `yaml:"tuning"`
	Evaluate  EvaluateConfig  `yaml:"evaluate"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig locates the raw SQL dump and the extracted CSV.
type DataConfig struct {
	SQLPath string `yaml:"sql_path"`
	CSVPath string `yaml:"csv_path"`
}

// ArtifactsConfig locates the files written by the stages.
type ArtifactsConfig struct {
	Preprocessor   string `yaml:"preprocessor"`
	Model          string `yaml:"model"`
	Heatmap        string `yaml:"heatmap"`
	LearningCurves string `yaml:"learning_curves"`
}

// SplitConfig controls the train/test split.
type SplitConfig struct {
	TestSize float64 `yaml:"test_size"`
	Seed     uint64  `yaml:"seed"`
}

// TuningConfig configures the Hyperband search.
type TuningConfig struct {
	Directory           string `yaml:"directory"`
	ProjectName         string `yaml:"project_name"`
	Objective           string `yaml:"objective"`
	Direction           string `yaml:"direction"`
	MaxEpochs           int    `yaml:"max_epochs"`
	Factor              int    `yaml:"factor"`
	HyperbandIterations int    `yaml:"hyperband_iterations"`
	BatchSize           int    `yaml:"batch_size"`
	Seed                uint64 `yaml:"seed"`
	Parallelism         int    `yaml:"parallelism"`
	Overwrite           bool   `yaml:"overwrite"`
	MaxCollisions       int    `yaml:"max_collisions"`

	// EarlyStopping applies to every trial.
	EarlyStoppingMonitor  string `yaml:"early_stopping_monitor"`
	EarlyStoppingPatience int    `yaml:"early_stopping_patience"`

	// TrialTimeLimit caps the training time of each trial, e.g. "2m".
	// Empty means no limit.
	TrialTimeLimit string `yaml:"trial_time_limit"`
}

// EvaluateConfig controls the evaluation stage.
type EvaluateConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// ServerConfig configures the inference API.
type ServerConfig struct {
	Port            int    `yaml:"port"`
	FrontendURL     string `yaml:"frontend_url"` // allowed CORS origin
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	ReadTimeout     string `yaml:"read_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json, slog
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			SQLPath: "synthetic_liver_cancer_dataset.sql",
			CSVPath: filepath.Join("datos", "synthetic_liver_cancer_dataset.csv"),
		},
		Artifacts: ArtifactsConfig{
			Preprocessor:   filepath.Join("artefactos_guardados", "preprocessor.gob"),
			Model:          filepath.Join("artefactos_guardados", "liver_cancer_model.json"),
			Heatmap:        filepath.Join("artefactos_guardados", "matriz_confusion.png"),
			LearningCurves: filepath.Join("artefactos_guardados", "curvas_aprendizaje.png"),
		},
		Split: SplitConfig{
			TestSize: 0.2,
			Seed:     42,
		},
		Tuning: TuningConfig{
			Directory:             "tuner_results",
			ProjectName:           "liver_cancer_tuning",
			Objective:             "val_auc",
			Direction:             "max",
			MaxEpochs:             30,
			Factor:                3,
			HyperbandIterations:   1,
			BatchSize:             32,
			Seed:                  42,
			Parallelism:           1,
			Overwrite:             true,
			MaxCollisions:         20,
			EarlyStoppingMonitor:  "val_loss",
			EarlyStoppingPatience: 10,
		},
		Evaluate: EvaluateConfig{
			Threshold: 0.5,
		},
		Server: ServerConfig{
			Port:            5000,
			FrontendURL:     "*",
			ShutdownTimeout: "10s",
			ReadTimeout:     "15s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any), a .env file in the working directory and the environment.
// A missing file at path is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "failed to parse config %s", path)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return nil
}

// ApplyEnv applies environment overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str(EnvPrefix+"SQL_PATH", &c.Data.SQLPath)
	str(EnvPrefix+"CSV_PATH", &c.Data.CSVPath)
	str(EnvPrefix+"PREPROCESSOR_PATH", &c.Artifacts.Preprocessor)
	str(EnvPrefix+"MODEL_PATH", &c.Artifacts.Model)
	str(EnvPrefix+"HEATMAP_PATH", &c.Artifacts.Heatmap)
	str(EnvPrefix+"TUNER_DIR", &c.Tuning.Directory)
	str(EnvPrefix+"TRIAL_TIME_LIMIT", &c.Tuning.TrialTimeLimit)
	str(EnvPrefix+"LOG_LEVEL", &c.Logging.Level)
	str(EnvPrefix+"LOG_FORMAT", &c.Logging.Format)
	str("FRONTEND_URL", &c.Server.FrontendURL)

	ints := []struct {
		name string
		dst  *int
	}{
		{"PORT", &c.Server.Port},
		{EnvPrefix + "MAX_EPOCHS", &c.Tuning.MaxEpochs},
		{EnvPrefix + "PARALLELISM", &c.Tuning.Parallelism},
	}
	for _, e := range ints {
		v := strings.TrimSpace(getenv(e.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewValidationError(e.name, "must be an integer", v)
		}
		*e.dst = n
	}

	if v := strings.TrimSpace(getenv(EnvPrefix + "SEED")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"SEED", "must be a non-negative integer", v)
		}
		c.Split.Seed = n
		c.Tuning.Seed = n
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "OVERWRITE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"OVERWRITE", "must be a boolean", v)
		}
		c.Tuning.Overwrite = b
	}
	return nil
}

// GetShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetTrialTimeLimit returns the per-trial training budget, 0 when unset.
func (c *Config) GetTrialTimeLimit() time.Duration {
	d, err := time.ParseDuration(c.Tuning.TrialTimeLimit)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ValidLogFormats lists the supported log formats.
var ValidLogFormats = []string{"console", "json", "slog"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return errors.NewValidationError("split.test_size", "must be in (0, 1)", c.Split.TestSize)
	}
	if c.Tuning.MaxEpochs < 1 {
		return errors.NewValidationError("tuning.max_epochs", "must be at least 1", c.Tuning.MaxEpochs)
	}
	if c.Tuning.Factor < 2 {
		return errors.NewValidationError("tuning.factor", "must be at least 2", c.Tuning.Factor)
	}
	if c.Tuning.HyperbandIterations < 1 {
		return errors.NewValidationError("tuning.hyperband_iterations", "must be at least 1", c.Tuning.HyperbandIterations)
	}
	if c.Tuning.BatchSize < 1 {
		return errors.NewValidationError("tuning.batch_size", "must be at least 1", c.Tuning.BatchSize)
	}
	if c.Tuning.Parallelism < 1 {
		return errors.NewValidationError("tuning.parallelism", "must be at least 1", c.Tuning.Parallelism)
	}
	if c.Tuning.Direction != "max" && c.Tuning.Direction != "min" {
		return errors.NewValidationError("tuning.direction", "must be max or min", c.Tuning.Direction)
	}
	if c.Tuning.EarlyStoppingPatience < 0 {
		return errors.NewValidationError("tuning.early_stopping_patience", "must not be negative", c.Tuning.EarlyStoppingPatience)
	}
	if v := c.Tuning.TrialTimeLimit; v != "" {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return errors.NewValidationError("tuning.trial_time_limit", "must be a positive duration", v)
		}
	}
	if c.Evaluate.Threshold <= 0 || c.Evaluate.Threshold >= 1 {
		return errors.NewValidationError("evaluate.threshold", "must be in (0, 1)", c.Evaluate.Threshold)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port", "must be in [1, 65535]", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return errors.NewValidationError("server.shutdown_timeout", "must be a duration", c.Server.ShutdownTimeout)
	}
	if _, ok := log.ParseLevel(c.Logging.Level); !ok {
		return errors.NewValidationError("logging.level", "must be debug, info, warn or error", c.Logging.Level)
	}
	valid := false
	for _, f := range ValidLogFormats {
		if c.Logging.Format == f {
			valid = true
			break
		}
	}
	if !valid {
		return errors.NewValidationError("logging.format", "must be console, json or slog", c.Logging.Format)
	}
	for name, p := range map[string]string{
		"data.csv_path":          c.Data.CSVPath,
		"artifacts.preprocessor": c.Artifacts.Preprocessor,
		"artifacts.model":        c.Artifacts.Model,
	} {
		if p == "" {
			return errors.NewValidationError(name, "must not be empty", p)
		}
	}
	return nil
}
