package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/pershow/cardagent/internal/logger"
	"github.com/pershow/cardagent/providers"
	"github.com/pershow/cardagent/types"
	"go.uber.org/zap"
)

// Tool is a named, schema-described capability the model may invoke mid-turn.
// Parameters returns a JSON-Schema object consumable by the model backend.
// Status derives a human-readable progress label for one invocation.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Status(params map[string]interface{}) string
	Execute(ctx context.Context, params map[string]interface{}) (string, error)
}

// Registry maps tool names to handlers and their schemas. Tools are registered
// at construction time; dispatch is a lookup, never reflection.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. A duplicate name replaces the previous registration.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &types.ToolNotFoundError{Name: name}
	}
	return t, nil
}

// Definitions returns the tool schemas in registration order for the model
// backend.
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// StatusFor derives the progress label for an invocation. A panicking or
// missing status generator never fails the invocation.
func (r *Registry) StatusFor(call providers.ToolCall) (status string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("Tool status generation panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", rec))
			status = fmt.Sprintf("Running %s", call.Name)
		}
	}()
	t, err := r.Get(call.Name)
	if err != nil {
		return fmt.Sprintf("Running %s", call.Name)
	}
	if s := t.Status(call.Params); s != "" {
		return s
	}
	return fmt.Sprintf("Running %s", call.Name)
}

// Dispatch executes one tool invocation. Execution failures are classified:
// non-fatal kinds become a textual result so the model can react to them in
// conversation, while fatal kinds, an unknown tool name or context
// cancellation are returned as errors and terminate the session.
func (r *Registry) Dispatch(ctx context.Context, call providers.ToolCall) (string, error) {
	t, err := r.Get(call.Name)
	if err != nil {
		logger.Error("Requested tool is not registered", zap.String("tool", call.Name))
		return "", err
	}

	logger.Debug("Tool call start",
		zap.String("tool", call.Name),
		zap.String("id", call.ID),
		zap.Any("params", call.Params))

	result, err := t.Execute(ctx, call.Params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		kind := types.Classify(err)
		if kind.IsFatal() {
			logger.Error("Tool execution failed fatally",
				zap.String("tool", call.Name),
				zap.String("id", call.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			return "", err
		}
		logger.Warn("Tool execution failed",
			zap.String("tool", call.Name),
			zap.String("id", call.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return fmt.Sprintf("Tool %s failed: %v", call.Name, err), nil
	}

	logger.Debug("Tool call end",
		zap.String("tool", call.Name),
		zap.String("id", call.ID),
		zap.Int("result_length", len(result)))
	return result, nil
}
