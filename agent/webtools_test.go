package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/pershow/cardagent/config"
	"github.com/pershow/cardagent/types"
	"github.com/pershow/cardagent/web"
)

func testWebConfig() config.WebToolConfig {
	return config.WebToolConfig{
		ConnectTimeoutSeconds: 2,
		ReadTimeoutSeconds:    2,
		MaxRedirects:          5,
	}
}

type stubChain struct {
	results    []web.SearchResult
	err        error
	hasPrimary bool
	gotCount   int
}

func (s *stubChain) Search(ctx context.Context, query string, count int) ([]web.SearchResult, error) {
	s.gotCount = count
	return s.results, s.err
}

func (s *stubChain) HasPrimary() bool { return s.hasPrimary }

func TestWebSearchToolFormatsResults(t *testing.T) {
	chain := &stubChain{results: []web.SearchResult{
		{Title: "Go blog", URL: "https://go.dev/blog", Snippet: "The Go programming language blog."},
		{Title: "No link result", Snippet: "snippet only"},
	}}
	tool := NewWebSearchTool(chain)

	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "golang"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{`Search results for "golang"`, "1. Go blog", "URL: https://go.dev/blog", "2. No link result"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWebSearchToolMissingQuery(t *testing.T) {
	tool := NewWebSearchTool(&stubChain{})
	out, err := tool.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "no query") {
		t.Errorf("expected a textual failure, got %q", out)
	}
}

func TestWebSearchToolNoResults(t *testing.T) {
	tool := NewWebSearchTool(&stubChain{hasPrimary: true})
	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "obscure"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, `No results found for "obscure"`) {
		t.Errorf("got %q", out)
	}
	if strings.Contains(out, "Brave") {
		t.Error("advisory should not appear when a primary credential is configured")
	}
}

func TestWebSearchToolBlockedAdvisory(t *testing.T) {
	tool := NewWebSearchTool(&stubChain{err: types.ErrProviderBlocked})
	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "q"})
	if err != nil {
		t.Fatalf("blocked provider must not be fatal, got %v", err)
	}
	if !strings.Contains(out, "No results found") || !strings.Contains(out, "Brave Search API key") {
		t.Errorf("expected no-results message with advisory, got %q", out)
	}
}

func TestWebSearchToolStatus(t *testing.T) {
	tool := NewWebSearchTool(&stubChain{})
	got := tool.Status(map[string]interface{}{"query": "rust vs go"})
	if got != `Searching the web for "rust vs go"` {
		t.Errorf("status = %q", got)
	}
	if got := tool.Status(map[string]interface{}{}); got != "Searching the web" {
		t.Errorf("fallback status = %q", got)
	}
}

func TestCoerceCount(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want int
	}{
		{"json number", float64(7), 7},
		{"int", 3, 3},
		{"numeric string", "4", 4},
		{"padded string", " 9 ", 9},
		{"garbage string", "many", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := coerceCount(tc.in); got != tc.want {
				t.Errorf("coerceCount(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestFetchURLToolStatus(t *testing.T) {
	tool := NewFetchURLTool(nil, nil)
	long := "https://example.com/" + strings.Repeat("p/", 60)
	got := tool.Status(map[string]interface{}{"url": long})
	if !strings.HasPrefix(got, "Reading https://example.com/") || !strings.HasSuffix(got, "...") {
		t.Errorf("status should truncate long URLs, got %q", got)
	}
	if got := tool.Status(map[string]interface{}{}); got != "Reading a web page" {
		t.Errorf("fallback status = %q", got)
	}
}

func TestFetchURLToolInvalidScheme(t *testing.T) {
	tool := NewFetchURLTool(web.NewFetcher(testWebConfig()), web.NewExtractor(0))
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": "ftp://example.com"})
	if err != nil {
		t.Fatalf("fetch failure must become a textual result, got %v", err)
	}
	if !strings.Contains(out, "Failed to fetch") {
		t.Errorf("got %q", out)
	}
}

func TestFetchURLToolMissingURL(t *testing.T) {
	tool := NewFetchURLTool(nil, nil)
	out, err := tool.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "no URL") {
		t.Errorf("got %q", out)
	}
}
