package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"

// braveClient is the keyed primary search provider (structured JSON API).
type braveClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func newBraveClient(apiKey string) *braveClient {
	return &braveClient{
		apiKey:   apiKey,
		endpoint: braveSearchEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Search queries the Brave Web Search API and normalizes the response.
func (b *braveClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("brave search read body: %w", err)
	}

	var results []SearchResult
	for _, item := range gjson.GetBytes(body, "web.results").Array() {
		results = append(results, SearchResult{
			Title:   item.Get("title").String(),
			URL:     item.Get("url").String(),
			Snippet: item.Get("description").String(),
		})
		if len(results) >= count {
			break
		}
	}
	return results, nil
}
