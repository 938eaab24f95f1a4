package providers

import (
	"context"
)

// LimitConcurrencyProvider wraps a Provider and bounds concurrent backend
// calls across all sessions sharing it.
type LimitConcurrencyProvider struct {
	inner Provider
	sem   chan struct{}
}

// NewLimitConcurrencyProvider creates the wrapper. maxConcurrent must be >= 1.
func NewLimitConcurrencyProvider(inner Provider, maxConcurrent int) *LimitConcurrencyProvider {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &LimitConcurrencyProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (p *LimitConcurrencyProvider) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *LimitConcurrencyProvider) release() {
	<-p.sem
}

// Chat implements Provider.
func (p *LimitConcurrencyProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, options ...ChatOption) (*Response, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return p.inner.Chat(ctx, messages, tools, options...)
}

// ChatStream implements StreamingProvider when the inner provider streams.
func (p *LimitConcurrencyProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, callback StreamCallback, options ...ChatOption) error {
	streaming, ok := p.inner.(StreamingProvider)
	if !ok {
		resp, err := p.Chat(ctx, messages, tools, options...)
		if err != nil {
			return err
		}
		callback(StreamChunk{Content: resp.Content, Done: true, ToolCalls: resp.ToolCalls})
		return nil
	}

	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()
	return streaming.ChatStream(ctx, messages, tools, callback, options...)
}

// SupportsStreaming forwards to the inner provider.
func (p *LimitConcurrencyProvider) SupportsStreaming() bool {
	return p.inner.SupportsStreaming()
}

// Close forwards to the inner provider.
func (p *LimitConcurrencyProvider) Close() error {
	return p.inner.Close()
}
