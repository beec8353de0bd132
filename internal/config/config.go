// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/verify-cli/internal/classify"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig          `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	EmailCheck EmailCheckConfig     `yaml:"emailcheck" mapstructure:"emailcheck"`
	Reader     ReaderConfig         `yaml:"reader" mapstructure:"reader"`
	Gate       GateConfig           `yaml:"gate" mapstructure:"gate"`
	Retry      RetryConfig          `yaml:"retry" mapstructure:"retry"`
	Decay      classify.DecayConfig `yaml:"decay" mapstructure:"decay"`
	Strategy   StrategyConfig       `yaml:"strategy" mapstructure:"strategy"`
	Log        LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Path is the SQLite file location when Driver is sqlite.
	Path     string `yaml:"path" mapstructure:"path"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the judge and the
// deep-research extraction method.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	JudgeModel    string `yaml:"judge_model" mapstructure:"judge_model"`
	ResearchModel string `yaml:"research_model" mapstructure:"research_model"`
}

// EmailCheckConfig holds the contact verification API settings.
type EmailCheckConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ReaderConfig holds the page reader API settings.
type ReaderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GateConfig configures verification behavior.
type GateConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	UnverifiedPenalty float64 `yaml:"unverified_penalty" mapstructure:"unverified_penalty"`
	// JudgeEnabled gates the model-judge layer; without it records top out
	// at unverified.
	JudgeEnabled bool `yaml:"judge_enabled" mapstructure:"judge_enabled"`
}

// RetryConfig configures the retry orchestrator.
type RetryConfig struct {
	Limit        int `yaml:"limit" mapstructure:"limit"`
	LeaseTTLSecs int `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
	ResearchSecs int `yaml:"research_timeout_secs" mapstructure:"research_timeout_secs"`
}

// StrategyConfig configures retry strategy selection.
type StrategyConfig struct {
	// TablePath points at a YAML strategy table; empty uses the built-in
	// defaults.
	TablePath string `yaml:"table_path" mapstructure:"table_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "verify.db")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.judge_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.research_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("emailcheck.base_url", "https://api.emailcheck.dev")
	v.SetDefault("reader.base_url", "https://r.jina.ai")
	v.SetDefault("gate.concurrency", 4)
	v.SetDefault("gate.unverified_penalty", 0.85)
	v.SetDefault("gate.judge_enabled", true)
	v.SetDefault("retry.limit", 100)
	v.SetDefault("retry.lease_ttl_secs", 300)
	v.SetDefault("retry.research_timeout_secs", 60)
	v.SetDefault("decay.half_life_days", 365)
	v.SetDefault("decay.floor", 0.1)
	v.SetDefault("decay.stale_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by a command mode are present.
func (c *Config) Validate(mode string) error {
	var missing []string

	check := func(cond bool, msg string) {
		if cond {
			missing = append(missing, msg)
		}
	}

	check(c.Gate.Concurrency < 1 || c.Gate.Concurrency > 64, "gate.concurrency must be between 1 and 64")
	check(c.Gate.UnverifiedPenalty <= 0 || c.Gate.UnverifiedPenalty > 1, "gate.unverified_penalty must be in (0, 1]")

	switch c.Store.Driver {
	case "sqlite":
		check(c.Store.Path == "", "store.path is required for sqlite")
	case "postgres":
		check(c.Store.DatabaseURL == "", "store.database_url is required for postgres")
	default:
		check(true, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "verify":
		check(c.Gate.JudgeEnabled && c.Anthropic.Key == "", "anthropic.key is required when the judge is enabled")
	case "retry":
		check(c.Anthropic.Key == "", "anthropic.key is required")
		check(c.Retry.Limit < 1, "retry.limit must be > 0")
		check(c.Retry.LeaseTTLSecs < 1, "retry.lease_ttl_secs must be > 0")
	case "quarantine", "strategies", "migrate":
		// Store checks above are enough.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
