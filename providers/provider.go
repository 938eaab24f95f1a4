// Package providers abstracts the model backend behind a small Provider
// interface so the orchestrator does not depend on a vendor SDK directly.
package providers

import "context"

// ToolChoice is the tool-choice policy for one turn. Auto lets the model
// decide whether to call a tool; Required forces at least one call.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role       string // system, user, assistant, tool
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
	ToolName   string     // tool messages only
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID     string
	Name   string
	Params map[string]interface{}

	// rawArgs accumulates the streamed argument fragments before parsing.
	rawArgs string
}

// ToolDefinition is the schema exposed to the model for one callable tool.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed (non-streaming) model turn.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// StreamChunk is one unit of streamed output. Content chunks arrive with
// Done=false; the final chunk carries Done=true, the full accumulated content
// and any tool calls.
type StreamChunk struct {
	Content   string
	Done      bool
	ToolCalls []ToolCall
}

// StreamCallback receives stream chunks in emission order.
type StreamCallback func(chunk StreamChunk)

// ChatOptions are per-call overrides.
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	ToolChoice  ToolChoice
}

// ChatOption mutates ChatOptions.
type ChatOption func(*ChatOptions)

// WithModel overrides the model for one call.
func WithModel(model string) ChatOption {
	return func(o *ChatOptions) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ChatOption {
	return func(o *ChatOptions) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = n }
}

// WithToolChoice sets the tool-choice policy for one call.
func WithToolChoice(tc ToolChoice) ChatOption {
	return func(o *ChatOptions) { o.ToolChoice = tc }
}

// Provider is a model backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, options ...ChatOption) (*Response, error)
	SupportsStreaming() bool
	Close() error
}

// StreamingProvider is a Provider that can stream incremental output.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, callback StreamCallback, options ...ChatOption) error
}
