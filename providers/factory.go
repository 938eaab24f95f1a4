package providers

import (
	"github.com/pershow/cardagent/config"
)

// NewProvider builds the model backend from configuration. The returned
// provider is shared by all sessions and wrapped with a concurrency limit so
// a burst of sessions cannot exhaust backend connections.
func NewProvider(cfg *config.Config) (Provider, error) {
	inner, err := NewOpenAIProvider(
		cfg.Providers.OpenAI.APIKey,
		cfg.Providers.OpenAI.BaseURL,
		cfg.Agent.Model,
		cfg.Agent.MaxTokens,
	)
	if err != nil {
		return nil, err
	}

	maxConcurrent := cfg.Agent.MaxConcurrentModelCalls
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return NewLimitConcurrencyProvider(inner, maxConcurrent), nil
}
