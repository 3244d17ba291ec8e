// Package config loads the sigforge configuration from file, environment,
// and defaults, in that order of increasing precedence for env overrides.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// BatchConfig controls rule discovery and the worker pool.
type BatchConfig struct {
	// InputPatterns are the include globs for rule file discovery.
	InputPatterns []string `mapstructure:"input_patterns" validate:"min=1"`
	// ExcludePatterns remove matches from the include set.
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	// ParallelWorkers bounds the number of concurrent rule tasks.
	ParallelWorkers int `mapstructure:"parallel_workers" validate:"gte=1,lte=256"`
	// FailFast skips all queued tasks after the first failure.
	FailFast bool `mapstructure:"fail_fast"`
}

// ValidationConfig controls mismatch handling.
type ValidationConfig struct {
	// Strict escalates any validation mismatch to a failed task.
	Strict bool `mapstructure:"strict"`
}

// SeedConfig configures seed acquisition.
type SeedConfig struct {
	// Provider selects the seed source: "static" or "openai".
	Provider string `mapstructure:"provider" validate:"oneof=static openai"`
	// Endpoint is the chat-completions URL for the openai provider.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Model    string `mapstructure:"model"`
	// APIKeyEnv names the environment variable holding the API key. The
	// key itself never appears in config files.
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
}

// Config is the complete sigforge configuration.
type Config struct {
	// Samples is the target number of test cases per rule.
	Samples int `mapstructure:"samples" validate:"gte=1"`
	// SeedSamples is the number of positive (and negative) seeds requested
	// per rule.
	SeedSamples int `mapstructure:"seed_samples" validate:"gte=1"`
	// RandomSeed fixes the expansion engine's random choices.
	RandomSeed int64 `mapstructure:"random_seed"`
	// OutputDir is the root directory for exported artifacts.
	OutputDir string `mapstructure:"output_dir" validate:"required"`
	// Platforms lists the exporters to run for each rule.
	Platforms []string `mapstructure:"platforms" validate:"min=1"`

	Batch      BatchConfig      `mapstructure:"batch"`
	Validation ValidationConfig `mapstructure:"validation"`
	Seed       SeedConfig       `mapstructure:"seed"`
}

func setDefaults() {
	viper.SetDefault("samples", 200)
	viper.SetDefault("seed_samples", 5)
	viper.SetDefault("random_seed", 1)
	viper.SetDefault("output_dir", "./sigforge-out")
	viper.SetDefault("platforms", []string{"panther"})

	viper.SetDefault("batch.input_patterns", []string{"rules/**/*.yml"})
	viper.SetDefault("batch.exclude_patterns", []string{})
	viper.SetDefault("batch.parallel_workers", 4)
	viper.SetDefault("batch.fail_fast", false)

	viper.SetDefault("validation.strict", false)

	viper.SetDefault("seed.provider", "static")
	viper.SetDefault("seed.endpoint", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("seed.model", "gpt-4o")
	viper.SetDefault("seed.api_key_env", "OPENAI_API_KEY")
	viper.SetDefault("seed.timeout", 30*time.Second)
	viper.SetDefault("seed.max_retries", 3)
	viper.SetDefault("seed.requests_per_second", 1.0)
}

func loadFromEnv() {
	viper.SetEnvPrefix("SIGFORGE")
	viper.AutomaticEnv()

	_ = viper.BindEnv("samples", "SIGFORGE_SAMPLES")
	_ = viper.BindEnv("seed_samples", "SIGFORGE_SEED_SAMPLES")
	_ = viper.BindEnv("random_seed", "SIGFORGE_RANDOM_SEED")
	_ = viper.BindEnv("output_dir", "SIGFORGE_OUTPUT_DIR")
	_ = viper.BindEnv("batch.parallel_workers", "SIGFORGE_PARALLEL_WORKERS")
	_ = viper.BindEnv("batch.fail_fast", "SIGFORGE_FAIL_FAST")
	_ = viper.BindEnv("validation.strict", "SIGFORGE_STRICT")
	_ = viper.BindEnv("seed.provider", "SIGFORGE_SEED_PROVIDER")
	_ = viper.BindEnv("seed.endpoint", "SIGFORGE_SEED_ENDPOINT")
	_ = viper.BindEnv("seed.model", "SIGFORGE_SEED_MODEL")
}

// Load reads sigforge.yaml (working directory or ./config), applies env
// overrides, and validates the result. A missing config file is fine; the
// defaults describe a complete offline run.
func Load(path string) (*Config, error) {
	viper.Reset()
	setDefaults()
	loadFromEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		viper.SetConfigName("sigforge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
