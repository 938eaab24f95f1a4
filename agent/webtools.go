package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pershow/cardagent/web"
)

// braveAdvisory is appended to empty search results when the scrape fallback
// was blocked and no primary credential is configured.
const braveAdvisory = "Note: the search provider is currently limiting automated requests. " +
	"Configuring a Brave Search API key gives more reliable results."

// Searcher is the slice of the search chain the tool needs. *web.SearchChain
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]web.SearchResult, error)
	HasPrimary() bool
}

// WebSearchTool searches the web through the provider chain.
type WebSearchTool struct {
	chain Searcher
}

// NewWebSearchTool creates the web_search tool.
func NewWebSearchTool(chain Searcher) *WebSearchTool {
	return &WebSearchTool{chain: chain}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns a ranked list of results with title, URL and snippet."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query",
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of results to return (1-10, default 5)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Status(params map[string]interface{}) string {
	query, _ := params["query"].(string)
	if query == "" {
		return "Searching the web"
	}
	return fmt.Sprintf("Searching the web for %q", query)
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "Search failed: no query was provided.", nil
	}

	count := coerceCount(params["count"])
	results, err := t.chain.Search(ctx, query, count)
	if err != nil {
		// The chain only surfaces the provider-blocked sentinel.
		msg := fmt.Sprintf("No results found for %q.", query)
		if !t.chain.HasPrimary() {
			msg += " " + braveAdvisory
		}
		return msg, nil
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, r.Title)
		if r.URL != "" {
			fmt.Fprintf(&sb, "   URL: %s\n", r.URL)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
	}
	return sb.String(), nil
}

// coerceCount reads a count argument that may arrive as a JSON number, a
// string, or garbage. Zero means "use the default"; the chain clamps it.
func coerceCount(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return 0
}

// FetchURLTool fetches a page and returns its readable text.
type FetchURLTool struct {
	fetcher   *web.Fetcher
	extractor *web.Extractor
}

// NewFetchURLTool creates the fetch_url tool.
func NewFetchURLTool(fetcher *web.Fetcher, extractor *web.Extractor) *FetchURLTool {
	return &FetchURLTool{fetcher: fetcher, extractor: extractor}
}

func (t *FetchURLTool) Name() string { return "fetch_url" }

func (t *FetchURLTool) Description() string {
	return "Fetch a web page and return its main readable text content."
}

func (t *FetchURLTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The http(s) URL to fetch",
			},
		},
		"required": []string{"url"},
	}
}

func (t *FetchURLTool) Status(params map[string]interface{}) string {
	rawURL, _ := params["url"].(string)
	if rawURL == "" {
		return "Reading a web page"
	}
	return fmt.Sprintf("Reading %s", truncateURL(rawURL, 60))
}

func (t *FetchURLTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	rawURL, _ := params["url"].(string)
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "Fetch failed: no URL was provided.", nil
	}

	doc, err := t.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Failed to fetch %s: %v", rawURL, err), nil
	}

	text := t.extractor.ExtractMainText(doc.RawHTML)
	return fmt.Sprintf("Content from %s:\n\n%s", doc.FinalURL, text), nil
}

func truncateURL(u string, maxLen int) string {
	if len(u) <= maxLen {
		return u
	}
	return u[:maxLen] + "..."
}
