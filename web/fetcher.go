// Package web implements the agent's web tools: page fetching, readable-text
// extraction and the search provider chain.
package web

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pershow/cardagent/config"
	"github.com/pershow/cardagent/internal/logger"
	"github.com/pershow/cardagent/types"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// browserUserAgent is sent on every fetch. Several sites return stripped or
// blocked pages to unknown agents.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 2 << 20 // 2MB

// FetchedDocument is the result of a successful fetch after redirect
// resolution and encoding normalization.
type FetchedDocument struct {
	RawHTML  string
	FinalURL string
}

// Fetcher performs HTTP(S) GETs with bounded timeouts and redirects.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a Fetcher from the web tool configuration. Zero values
// fall back to the defaults (10s connect, 15s read, 5 redirects).
func NewFetcher(cfg config.WebToolConfig) *Fetcher {
	connectTimeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	readTimeout := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   connectTimeout + readTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Fetch GETs rawURL, following redirects, and returns the decoded document.
// The scheme is validated before any network call.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &types.InvalidSchemeError{URL: rawURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &types.NetworkError{Err: err}
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Set explicitly so the transport does not transparently swallow the
	// Content-Encoding header; decompression happens below.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Debug("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil, &types.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.HTTPStatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, &types.NetworkError{Err: fmt.Errorf("gzip decode: %w", err)}
		}
		defer gz.Close()
		reader = gz
	}

	// Normalize whatever charset the server declared to UTF-8.
	decoded, err := charset.NewReader(reader, resp.Header.Get("Content-Type"))
	if err != nil {
		decoded = reader
	}

	body, err := io.ReadAll(io.LimitReader(decoded, maxBodyBytes))
	if err != nil {
		return nil, &types.NetworkError{Err: err}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	logger.Debug("Fetched document",
		zap.String("url", rawURL),
		zap.String("final_url", finalURL),
		zap.Int("bytes", len(body)))

	return &FetchedDocument{
		RawHTML:  string(body),
		FinalURL: finalURL,
	}, nil
}
