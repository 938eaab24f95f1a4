// Package agent implements the research assistant: the tool registry, the
// web tools, and the orchestrator that drives a tool-calling session against
// the model backend while streaming events to the subscriber.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pershow/cardagent/config"
	"github.com/pershow/cardagent/internal/logger"
	"github.com/pershow/cardagent/providers"
	"github.com/pershow/cardagent/types"
	"go.uber.org/zap"
)

// Publisher delivers session events to whatever transport is subscribed.
// Open registers the session and its cancel hook before any event flows;
// Publish is fire-and-forget.
type Publisher interface {
	Open(sessionID string, cancel context.CancelFunc)
	Publish(sessionID string, event StreamEvent)
}

// Session identifies one orchestrator run and its stream.
type Session struct {
	ID        string
	Action    Action
	CreatedAt time.Time
}

// Orchestrator drives assist sessions. Each session runs in its own
// goroutine; sessions share no state beyond the Publisher's routing table.
type Orchestrator struct {
	provider       providers.Provider
	registry       *Registry
	publisher      Publisher
	model          string
	temperature    float64
	maxTokens      int
	maxToolCalls   int
	sessionTimeout time.Duration
}

// NewOrchestrator wires the orchestrator from configuration. Zero config
// values fall back to the documented defaults.
func NewOrchestrator(provider providers.Provider, registry *Registry, publisher Publisher, cfg config.AgentConfig) *Orchestrator {
	maxToolCalls := cfg.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = 8
	}
	timeout := time.Duration(cfg.SessionTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Orchestrator{
		provider:       provider,
		registry:       registry,
		publisher:      publisher,
		model:          cfg.Model,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		maxToolCalls:   maxToolCalls,
		sessionTimeout: timeout,
	}
}

// Start accepts a request, registers a session and returns it immediately.
// The run proceeds asynchronously; the caller subscribes to the session's
// stream with the returned id. The run is deliberately detached from the
// caller's context so that the creating request returning does not kill it.
func (o *Orchestrator) Start(req AssistRequest) (*Session, error) {
	if _, err := ParseAction(string(req.Action)); err != nil {
		return nil, err
	}
	if req.FullContent == "" && req.Selection == "" {
		return nil, fmt.Errorf("request has no content")
	}

	session := &Session{
		ID:        uuid.NewString(),
		Action:    req.Action,
		CreatedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.sessionTimeout)
	o.publisher.Open(session.ID, cancel)

	logger.Info("Session started",
		zap.String("session_id", session.ID),
		zap.String("action", string(req.Action)),
		zap.String("depth", req.Depth),
		zap.Bool("has_selection", req.Selection != ""))

	go o.run(ctx, cancel, session, req)
	return session, nil
}

// run executes the session. A producer loop emits typed events into the
// per-session channel; a separate forwarder drains it into the Publisher, so
// backend callback timing never couples to transport delivery.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, session *Session, req AssistRequest) {
	defer cancel()

	events := make(chan StreamEvent, 256)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range events {
			o.publisher.Publish(session.ID, ev)
		}
	}()

	o.runLoop(ctx, session, req, events)
	close(events)
	<-forwarded

	logger.Info("Session finished", zap.String("session_id", session.ID))
}

// runLoop is the turn loop: awaiting the model, then either tool dispatch
// rounds or the streamed final answer. It always emits exactly one terminal
// event, and that event is the last one sent.
func (o *Orchestrator) runLoop(ctx context.Context, session *Session, req AssistRequest, events chan<- StreamEvent) {
	messages, toolChoice := buildMessages(req)
	toolDefs := o.registry.Definitions()
	toolCallsUsed := 0

	for {
		if err := ctx.Err(); err != nil {
			events <- ErrorEvent(sessionErrorMessage(err))
			return
		}

		resp, streamed, err := o.completeTurn(ctx, messages, toolDefs, toolChoice, events)
		if err != nil {
			logger.Error("Model turn failed",
				zap.String("session_id", session.ID),
				zap.Error(err))
			events <- ErrorEvent(sessionErrorMessage(err))
			return
		}

		if len(resp.ToolCalls) == 0 {
			if !streamed && resp.Content != "" {
				events <- ContentEvent(resp.Content)
			}
			events <- DoneEvent()
			return
		}

		toolCallsUsed += len(resp.ToolCalls)
		if toolCallsUsed > o.maxToolCalls {
			logger.Warn("Tool call limit exceeded",
				zap.String("session_id", session.ID),
				zap.Int("limit", o.maxToolCalls))
			events <- ErrorEvent(fmt.Sprintf("The assistant used too many tool calls (limit %d). Try a narrower request.", o.maxToolCalls))
			return
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			events <- ToolStatusEvent(o.registry.StatusFor(call))

			result, err := o.registry.Dispatch(ctx, call)
			if err != nil {
				events <- ErrorEvent(sessionErrorMessage(err))
				return
			}
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}

		// Only the first turn may force a tool call.
		toolChoice = providers.ToolChoiceAuto
	}
}

// completeTurn submits one model turn. With a streaming provider, content
// deltas are emitted as Content events as they arrive and the returned
// response carries the accumulated content; streamed reports whether deltas
// already went out so the caller does not emit the content twice.
func (o *Orchestrator) completeTurn(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, toolChoice providers.ToolChoice, events chan<- StreamEvent) (*providers.Response, bool, error) {
	opts := []providers.ChatOption{providers.WithToolChoice(toolChoice)}
	if o.model != "" {
		opts = append(opts, providers.WithModel(o.model))
	}
	if o.temperature > 0 {
		opts = append(opts, providers.WithTemperature(o.temperature))
	}
	if o.maxTokens > 0 {
		opts = append(opts, providers.WithMaxTokens(o.maxTokens))
	}

	streamingProvider, ok := o.provider.(providers.StreamingProvider)
	if !ok || !o.provider.SupportsStreaming() {
		resp, err := o.provider.Chat(ctx, messages, toolDefs, opts...)
		if err != nil {
			return nil, false, &types.BackendError{Err: err}
		}
		return resp, false, nil
	}

	var final providers.StreamChunk
	streamedContent := false
	err := streamingProvider.ChatStream(ctx, messages, toolDefs, func(chunk providers.StreamChunk) {
		if chunk.Done {
			final = chunk
			return
		}
		if chunk.Content != "" {
			streamedContent = true
			events <- ContentEvent(chunk.Content)
		}
	}, opts...)
	if err != nil {
		return nil, streamedContent, &types.BackendError{Err: err}
	}

	return &providers.Response{
		Content:      final.Content,
		ToolCalls:    final.ToolCalls,
		FinishReason: "stop",
	}, streamedContent, nil
}

// sessionErrorMessage maps a fatal error to the user-visible Error payload.
// Backend failures are surfaced verbatim.
func sessionErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The session timed out before the assistant finished."
	case errors.Is(err, context.Canceled):
		return "The session was cancelled."
	}
	if types.Classify(err) == types.FailureBackend {
		var backend *types.BackendError
		if errors.As(err, &backend) {
			return backend.Err.Error()
		}
	}
	return err.Error()
}
