// Package bootstrap wires up the process-wide pieces the CLI commands
// share: the logger, the configuration, and the seed source.
package bootstrap

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sigforge/config"
	"sigforge/seed"
)

// InitLogger builds the colored console logger used everywhere.
func InitLogger(verbose bool) (*zap.Logger, *zap.SugaredLogger) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar()
}

// InitConfig loads the configuration, logging where it came from.
func InitConfig(path string, sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path == "" {
		sugar.Debug("no config file given, using sigforge.yaml discovery, env vars, and defaults")
	}
	return cfg, nil
}

// InitSeedSource builds the configured seed source. The openai provider
// reads its API key from the configured environment variable so keys never
// live in config files.
func InitSeedSource(cfg *config.Config, sugar *zap.SugaredLogger) (seed.Source, error) {
	switch cfg.Seed.Provider {
	case "static":
		return seed.NewStaticSource(), nil
	case "openai":
		apiKey := os.Getenv(cfg.Seed.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("seed provider openai requires %s to be set", cfg.Seed.APIKeyEnv)
		}
		return seed.NewClient(seed.ClientConfig{
			Endpoint:          cfg.Seed.Endpoint,
			Model:             cfg.Seed.Model,
			APIKey:            apiKey,
			Timeout:           cfg.Seed.Timeout,
			MaxRetries:        cfg.Seed.MaxRetries,
			RequestsPerSecond: cfg.Seed.RequestsPerSecond,
		}, sugar), nil
	default:
		return nil, fmt.Errorf("unknown seed provider %q", cfg.Seed.Provider)
	}
}
