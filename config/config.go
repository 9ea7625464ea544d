// Package config loads dexter settings from a YAML file, the environment and
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DEXTER_LLM_MODEL.
const EnvPrefix = "DEXTER"

// Config holds all settings. The values are read by viper from a config file
// or environment variables.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Storage StorageConfig `mapstructure:"storage"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Agents  AgentsConfig  `mapstructure:"agents"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LLMConfig selects the completion service.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // "openai", "anthropic", "gemini", "mock"
	Model       string  `mapstructure:"model"`    // empty selects the provider default
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
	APIKey      string  `mapstructure:"api_key"` // empty falls back to the provider's own env var
}

// RetryConfig controls completion retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinWait     time.Duration `mapstructure:"min_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// StorageConfig locates conversation and session files.
type StorageConfig struct {
	MemoryDir   string `mapstructure:"memory_dir"`
	SessionsDir string `mapstructure:"sessions_dir"`
}

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	TimestampMode        bool     `mapstructure:"timestamp_mode"`
	MaxActionSteps       int      `mapstructure:"max_action_steps"`
	IsolateConversations bool     `mapstructure:"isolate_conversations"`
	FenceTags            []string `mapstructure:"fence_tags"`
	SystemPrompt         string   `mapstructure:"system_prompt"` // fixed prompt; empty builds one
}

// AgentsConfig sizes the background agent pool.
type AgentsConfig struct {
	Workers int `mapstructure:"workers"`
}

// LoggingConfig selects the logging backend.
type LoggingConfig struct {
	Backend string `mapstructure:"backend"` // "slog", "zerolog", "zap"
	Level   string `mapstructure:"level"`   // "debug", "info", "warn", "error"
	Format  string `mapstructure:"format"`  // "text", "json"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.api_key", "")

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.min_wait", "1s")
	v.SetDefault("retry.max_wait", "10s")

	v.SetDefault("storage.memory_dir", "memory")
	v.SetDefault("storage.sessions_dir", filepath.Join("memory", "sessions"))

	v.SetDefault("engine.timestamp_mode", true)
	v.SetDefault("engine.max_action_steps", 25)
	v.SetDefault("engine.isolate_conversations", false)
	v.SetDefault("engine.fence_tags", []string{"python", "py", "tool_code", "tool_call"})
	v.SetDefault("engine.system_prompt", "")

	v.SetDefault("agents.workers", 4)

	v.SetDefault("logging.backend", "slog")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Load reads configuration from configPath, or from config.yaml in the
// working directory or $HOME/.dexter when configPath is empty. A missing
// file is not an error when searching; an explicit path must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dexter"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. llm.api_key becomes DEXTER_LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.MinWait < 0 || c.Retry.MaxWait < 0 {
		errs = append(errs, errors.New("retry waits must not be negative"))
	}
	if c.Retry.MinWait > c.Retry.MaxWait {
		errs = append(errs, fmt.Errorf("retry.min_wait %s exceeds retry.max_wait %s", c.Retry.MinWait, c.Retry.MaxWait))
	}
	if c.Agents.Workers <= 0 {
		errs = append(errs, fmt.Errorf("agents.workers must be positive, got %d", c.Agents.Workers))
	}
	if c.Engine.MaxActionSteps <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_action_steps must be positive, got %d", c.Engine.MaxActionSteps))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	switch c.Logging.Backend {
	case "slog", "zerolog", "zap":
	default:
		errs = append(errs, fmt.Errorf("logging.backend %q is not supported", c.Logging.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
