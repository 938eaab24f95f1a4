package web

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pershow/cardagent/types"
	"golang.org/x/net/html"
)

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// blockMarker appears in the DuckDuckGo HTML when the request tripped bot
// detection and no results are served.
const blockMarker = "anomaly-modal"

// duckDuckGoClient scrapes the DuckDuckGo HTML endpoint. It needs no
// credential and serves as the fallback provider.
type duckDuckGoClient struct {
	fetcher  *Fetcher
	endpoint string
}

func newDuckDuckGoClient(fetcher *Fetcher) *duckDuckGoClient {
	return &duckDuckGoClient{fetcher: fetcher, endpoint: duckDuckGoEndpoint}
}

// Search fetches the results page and parses it. Blocked means the anti-bot
// marker is present and the parse yielded nothing; a page that carries the
// marker alongside real results still returns them.
func (d *duckDuckGoClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)

	doc, err := d.fetcher.Fetch(ctx, d.endpoint+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("duckduckgo fetch: %w", err)
	}

	results, err := parseDuckDuckGoResults(doc.RawHTML, count)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && strings.Contains(doc.RawHTML, blockMarker) {
		return nil, types.ErrProviderBlocked
	}
	return results, nil
}

// parseDuckDuckGoResults walks the results markup. Each hit is a node with
// class "result"; the anchor with class "result__a" carries title and link,
// and the node with class "result__snippet" carries the snippet.
func parseDuckDuckGoResults(rawHTML string, count int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo parse: %w", err)
	}

	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= count {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") {
			if r, ok := parseResultNode(n); ok {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func parseResultNode(n *html.Node) (SearchResult, bool) {
	var r SearchResult
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch {
			case node.Data == "a" && hasClass(node, "result__a"):
				r.Title = collapseWhitespace(collectText(node))
				r.URL = resolveRedirectURL(attrValue(node, "href"))
			case hasClass(node, "result__snippet"):
				r.Snippet = collapseWhitespace(collectText(node))
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r, r.Title != ""
}

// resolveRedirectURL unwraps DuckDuckGo's redirect links, which carry the
// target URL percent-encoded in the uddg query parameter.
func resolveRedirectURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if encoded := u.Query().Get("uddg"); encoded != "" {
		if decoded, err := url.QueryUnescape(encoded); err == nil {
			return decoded
		}
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
