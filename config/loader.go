// Package config loads and watches the service configuration. The config file
// is JSON under ~/.cardagent/ by default; every value can be overridden with
// CARDAGENT_* environment variables (CARDAGENT_PROVIDERS_OPENAI_API_KEY etc).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
	lastConfigFile string
)

// ConfigFileUsed returns the config file path used by the last Load. Empty
// when only defaults and environment variables were in effect.
func ConfigFileUsed() string {
	return lastConfigFile
}

// Load reads the configuration from configPath, or from the default locations
// when configPath is empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".cardagent"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	v.SetEnvPrefix("CARDAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: defaults plus environment variables.
	}
	lastConfigFile = v.ConfigFileUsed()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfigMu.Lock()
	globalConfig = &cfg
	globalConfigMu.Unlock()

	return &cfg, nil
}

// Get returns the most recently loaded configuration, or nil before Load.
func Get() *Config {
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// Validate checks invariants a running gateway depends on.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", cfg.Gateway.Port)
	}
	if cfg.Agent.MaxToolCalls < 0 {
		return fmt.Errorf("agent.max_tool_calls must be >= 0")
	}
	if cfg.Agent.SessionTimeoutSeconds < 0 {
		return fmt.Errorf("agent.session_timeout_seconds must be >= 0")
	}
	if cfg.Tools.Web.ExtractMaxChars < 0 {
		return fmt.Errorf("tools.web.extract_max_chars must be >= 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.model", "gpt-4o")
	v.SetDefault("agent.max_tokens", 4096)
	// No temperature default: unset means the API default is used.
	v.SetDefault("agent.max_tool_calls", 8)
	v.SetDefault("agent.session_timeout_seconds", 120)
	v.SetDefault("agent.max_concurrent_model_calls", 8)

	v.SetDefault("gateway.host", "localhost")
	v.SetDefault("gateway.port", 28990)
	v.SetDefault("gateway.read_timeout", 30)
	v.SetDefault("gateway.write_timeout", 30)

	v.SetDefault("tools.web.connect_timeout_seconds", 10)
	v.SetDefault("tools.web.read_timeout_seconds", 15)
	v.SetDefault("tools.web.max_redirects", 5)
	v.SetDefault("tools.web.extract_max_chars", 8000)
	v.SetDefault("tools.web.default_result_count", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.verbose", false)
}
