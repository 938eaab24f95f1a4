package config

// Config is the top-level configuration.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent" json:"agent"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Tools     ToolsConfig     `mapstructure:"tools" json:"tools"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
}

// AgentConfig controls the orchestrator loop.
type AgentConfig struct {
	Model       string  `mapstructure:"model" json:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	// MaxToolCalls bounds sequential tool invocations in one session.
	// Exceeding it is a fatal session error.
	MaxToolCalls int `mapstructure:"max_tool_calls" json:"max_tool_calls"`
	// SessionTimeoutSeconds bounds the wall-clock duration of one session,
	// including all model and tool calls. 0 falls back to the default.
	SessionTimeoutSeconds int `mapstructure:"session_timeout_seconds" json:"session_timeout_seconds"`
	// MaxConcurrentModelCalls caps in-flight model backend calls across all
	// sessions sharing the provider.
	MaxConcurrentModelCalls int `mapstructure:"max_concurrent_model_calls" json:"max_concurrent_model_calls"`
}

// ProvidersConfig holds backend credentials.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai" json:"openai"`
	Brave  BraveConfig  `mapstructure:"brave" json:"brave"`
}

// OpenAIConfig configures the model backend. APIKey is required for any
// agent call. BaseURL allows OpenAI-compatible endpoints.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// BraveConfig configures the primary search provider. Absence of the key
// silently activates the scrape fallback.
type BraveConfig struct {
	APIKey string `mapstructure:"api_key" json:"api_key"`
}

// GatewayConfig configures the HTTP/WebSocket gateway.
type GatewayConfig struct {
	Host         string `mapstructure:"host" json:"host"`
	Port         int    `mapstructure:"port" json:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" json:"read_timeout"`   // seconds
	WriteTimeout int    `mapstructure:"write_timeout" json:"write_timeout"` // seconds
}

// ToolsConfig configures the web tools.
type ToolsConfig struct {
	Web WebToolConfig `mapstructure:"web" json:"web"`
}

// WebToolConfig bounds the fetcher and extractor. All values have defaults;
// they exist so the bounds are never hard-coded at call sites.
type WebToolConfig struct {
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds" json:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int `mapstructure:"read_timeout_seconds" json:"read_timeout_seconds"`
	MaxRedirects          int `mapstructure:"max_redirects" json:"max_redirects"`
	ExtractMaxChars       int `mapstructure:"extract_max_chars" json:"extract_max_chars"`
	DefaultResultCount    int `mapstructure:"default_result_count" json:"default_result_count"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `mapstructure:"level" json:"level"`
	Verbose bool   `mapstructure:"verbose" json:"verbose"`
}
