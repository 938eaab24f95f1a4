package web

import (
	"context"

	"github.com/pershow/cardagent/internal/logger"
	"github.com/pershow/cardagent/types"
	"go.uber.org/zap"
)

// SearchResult is the provider-neutral shape of one search hit. Ordering is
// preserved from the provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet"`
}

// Result count bounds. Out-of-range or non-numeric requests clamp to these.
const (
	MinResultCount     = 1
	MaxResultCount     = 10
	DefaultResultCount = 5
)

// ClampCount normalizes a requested result count into [MinResultCount,
// MaxResultCount], substituting def (or DefaultResultCount) when the request
// is out of range.
func ClampCount(n, def int) int {
	if def < MinResultCount || def > MaxResultCount {
		def = DefaultResultCount
	}
	if n < MinResultCount || n > MaxResultCount {
		return def
	}
	return n
}

// searcher is one concrete search backend.
type searcher interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// SearchChain tries the keyed primary provider first when a credential is
// configured and falls back to the scrape-based secondary on failure, empty
// results or block detection. It never propagates provider errors to the
// caller except the ErrProviderBlocked sentinel, which callers may use to
// attach advisory text.
type SearchChain struct {
	primary   searcher // nil when no credential is configured
	secondary searcher
	defCount  int
}

// NewSearchChain builds the chain. braveAPIKey may be empty, which disables
// the primary provider entirely.
func NewSearchChain(braveAPIKey string, fetcher *Fetcher, defaultCount int) *SearchChain {
	c := &SearchChain{
		secondary: newDuckDuckGoClient(fetcher),
		defCount:  defaultCount,
	}
	if braveAPIKey != "" {
		c.primary = newBraveClient(braveAPIKey)
	}
	return c
}

// HasPrimary reports whether a primary provider credential is configured.
func (c *SearchChain) HasPrimary() bool { return c.primary != nil }

// Search runs the provider chain. The returned error is nil or
// types.ErrProviderBlocked; an empty slice signals no results.
func (c *SearchChain) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	count = ClampCount(count, c.defCount)

	if c.primary != nil {
		results, err := c.primary.Search(ctx, query, count)
		if err != nil {
			logger.Warn("Primary search provider failed, falling back",
				zap.String("query", query),
				zap.Error(err))
		} else if len(results) > 0 {
			return results, nil
		} else {
			logger.Debug("Primary search provider returned no results, falling back",
				zap.String("query", query))
		}
	}

	results, err := c.secondary.Search(ctx, query, count)
	if err != nil {
		if types.Classify(err) == types.FailureProviderBlocked {
			logger.Warn("Secondary search provider blocked the request",
				zap.String("query", query))
			return nil, types.ErrProviderBlocked
		}
		logger.Warn("Secondary search provider failed",
			zap.String("query", query),
			zap.Error(err))
		return nil, nil
	}
	return results, nil
}
