package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pershow/cardagent/config"
	"github.com/pershow/cardagent/providers"
)

// scriptedProvider returns canned responses turn by turn and records what it
// was asked.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    []*providers.Response
	err      error
	received [][]providers.Message
	choices  []providers.ToolChoice
	idx      int
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, options ...providers.ChatOption) (*providers.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := &providers.ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}
	msgs := make([]providers.Message, len(messages))
	copy(msgs, messages)
	p.received = append(p.received, msgs)
	p.choices = append(p.choices, opts.ToolChoice)

	if p.err != nil {
		return nil, p.err
	}
	if p.idx >= len(p.turns) {
		return &providers.Response{Content: "fallthrough", FinishReason: "stop"}, nil
	}
	resp := p.turns[p.idx]
	p.idx++
	return resp, nil
}

func (p *scriptedProvider) SupportsStreaming() bool { return false }
func (p *scriptedProvider) Close() error            { return nil }

// capturePublisher records published events and signals the terminal one.
type capturePublisher struct {
	mu       sync.Mutex
	events   []StreamEvent
	terminal chan struct{}
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{terminal: make(chan struct{})}
}

func (c *capturePublisher) Open(sessionID string, cancel context.CancelFunc) {}

func (c *capturePublisher) Publish(sessionID string, event StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	if event.Terminal() {
		close(c.terminal)
	}
}

func (c *capturePublisher) wait(t *testing.T) []StreamEvent {
	t.Helper()
	select {
	case <-c.terminal:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]StreamEvent, len(c.events))
	copy(events, c.events)
	return events
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		Model:                 "test-model",
		MaxToolCalls:          8,
		SessionTimeoutSeconds: 10,
	}
}

func assertSingleTerminalLast(t *testing.T, events []StreamEvent) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events published")
	}
	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("expected exactly one terminal event, got %d", terminals)
	}
	if !events[len(events)-1].Terminal() {
		t.Error("terminal event must be the last event")
	}
}

func TestOrchestratorToolLoop(t *testing.T) {
	provider := &scriptedProvider{turns: []*providers.Response{
		{ToolCalls: []providers.ToolCall{{
			ID:     "call_1",
			Name:   "web_search",
			Params: map[string]interface{}{"query": "go generics"},
		}}},
		{Content: "Generics landed in Go 1.18.", FinishReason: "stop"},
	}}

	registry := NewRegistry()
	registry.Register(&scriptedTool{name: "web_search", result: "1. Go 1.18 release notes", status: "Searching"})

	pub := newCapturePublisher()
	o := NewOrchestrator(provider, registry, pub, testAgentConfig())

	session, err := o.Start(AssistRequest{Action: ActionResearch, FullContent: "go generics"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if session.ID == "" {
		t.Fatal("session id must be set")
	}

	events := pub.wait(t)
	assertSingleTerminalLast(t, events)

	if events[0].ToolStatus == nil || events[0].ToolStatus.Description != "Searching" {
		t.Errorf("first event should be the tool status, got %+v", events[0])
	}
	var content strings.Builder
	for _, ev := range events {
		content.WriteString(ev.Content)
	}
	if content.String() != "Generics landed in Go 1.18." {
		t.Errorf("accumulated content = %q", content.String())
	}
	if !events[len(events)-1].Done {
		t.Error("session should end with Done")
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.choices) != 2 {
		t.Fatalf("expected 2 model turns, got %d", len(provider.choices))
	}
	if provider.choices[0] != providers.ToolChoiceRequired {
		t.Errorf("research must force a tool call on the first turn, got %q", provider.choices[0])
	}
	if provider.choices[1] != providers.ToolChoiceAuto {
		t.Errorf("later turns must use auto tool choice, got %q", provider.choices[1])
	}

	secondTurn := provider.received[1]
	last := secondTurn[len(secondTurn)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" || last.Content != "1. Go 1.18 release notes" {
		t.Errorf("tool result not fed back to the model: %+v", last)
	}
}

func TestOrchestratorToolFailureContinues(t *testing.T) {
	provider := &scriptedProvider{turns: []*providers.Response{
		{ToolCalls: []providers.ToolCall{{ID: "call_1", Name: "web_search", Params: map[string]interface{}{}}}},
		{Content: "answered without search", FinishReason: "stop"},
	}}

	registry := NewRegistry()
	registry.Register(&scriptedTool{name: "web_search", err: errors.New("dns failure")})

	pub := newCapturePublisher()
	o := NewOrchestrator(provider, registry, pub, testAgentConfig())
	if _, err := o.Start(AssistRequest{Action: ActionResearch, FullContent: "q"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := pub.wait(t)
	assertSingleTerminalLast(t, events)
	if !events[len(events)-1].Done {
		t.Error("tool failure must not end the session with Error")
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	secondTurn := provider.received[1]
	last := secondTurn[len(secondTurn)-1]
	if !strings.Contains(last.Content, "dns failure") {
		t.Errorf("failure text should reach the model, got %q", last.Content)
	}
}

func TestOrchestratorUnknownToolFatal(t *testing.T) {
	provider := &scriptedProvider{turns: []*providers.Response{
		{ToolCalls: []providers.ToolCall{{ID: "call_1", Name: "ghost", Params: map[string]interface{}{}}}},
	}}

	pub := newCapturePublisher()
	o := NewOrchestrator(provider, NewRegistry(), pub, testAgentConfig())
	if _, err := o.Start(AssistRequest{Action: ActionResearch, FullContent: "q"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := pub.wait(t)
	assertSingleTerminalLast(t, events)
	final := events[len(events)-1]
	if final.Error == "" || !strings.Contains(final.Error, "ghost") {
		t.Errorf("expected fatal Error naming the tool, got %+v", final)
	}
}

func TestOrchestratorBackendFailureFatal(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model backend exploded")}

	pub := newCapturePublisher()
	o := NewOrchestrator(provider, NewRegistry(), pub, testAgentConfig())
	if _, err := o.Start(AssistRequest{Action: ActionSuggestTopics, FullContent: "q"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := pub.wait(t)
	assertSingleTerminalLast(t, events)
	final := events[len(events)-1]
	if !strings.Contains(final.Error, "model backend exploded") {
		t.Errorf("backend failure must surface verbatim, got %q", final.Error)
	}
}

func TestOrchestratorToolCallLimit(t *testing.T) {
	// Every turn requests another tool call.
	loopResp := &providers.Response{ToolCalls: []providers.ToolCall{{
		ID: "call", Name: "web_search", Params: map[string]interface{}{"query": "again"},
	}}}
	provider := &scriptedProvider{turns: []*providers.Response{
		loopResp, loopResp, loopResp, loopResp, loopResp,
	}}

	registry := NewRegistry()
	registry.Register(&scriptedTool{name: "web_search", result: "more"})

	cfg := testAgentConfig()
	cfg.MaxToolCalls = 3
	pub := newCapturePublisher()
	o := NewOrchestrator(provider, registry, pub, cfg)
	if _, err := o.Start(AssistRequest{Action: ActionResearch, FullContent: "q"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := pub.wait(t)
	assertSingleTerminalLast(t, events)
	final := events[len(events)-1]
	if !strings.Contains(final.Error, "tool calls") {
		t.Errorf("expected tool-call limit error, got %+v", final)
	}
}

func TestOrchestratorStartValidation(t *testing.T) {
	o := NewOrchestrator(&scriptedProvider{}, NewRegistry(), newCapturePublisher(), testAgentConfig())

	if _, err := o.Start(AssistRequest{Action: "summon", FullContent: "x"}); err == nil {
		t.Error("unknown action must be rejected")
	}
	if _, err := o.Start(AssistRequest{Action: ActionResearch}); err == nil {
		t.Error("empty request must be rejected")
	}
}

// streamingScriptedProvider streams one canned answer in fragments.
type streamingScriptedProvider struct {
	scriptedProvider
	fragments []string
}

func (p *streamingScriptedProvider) SupportsStreaming() bool { return true }

func (p *streamingScriptedProvider) ChatStream(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, callback providers.StreamCallback, options ...providers.ChatOption) error {
	var full strings.Builder
	for _, frag := range p.fragments {
		full.WriteString(frag)
		callback(providers.StreamChunk{Content: frag})
	}
	callback(providers.StreamChunk{Content: full.String(), Done: true})
	return nil
}

func TestOrchestratorStreamsDeltas(t *testing.T) {
	provider := &streamingScriptedProvider{fragments: []string{"Hello ", "streaming ", "world."}}

	pub := newCapturePublisher()
	o := NewOrchestrator(provider, NewRegistry(), pub, testAgentConfig())
	if _, err := o.Start(AssistRequest{Action: ActionSuggestTopics, FullContent: "q"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := pub.wait(t)
	assertSingleTerminalLast(t, events)

	var got []string
	for _, ev := range events {
		if ev.Content != "" {
			got = append(got, ev.Content)
		}
	}
	if strings.Join(got, "") != "Hello streaming world." {
		t.Errorf("deltas must not be duplicated or reordered, got %q", strings.Join(got, "|"))
	}
	if len(got) != 3 {
		t.Errorf("expected 3 content events, got %d", len(got))
	}
}
