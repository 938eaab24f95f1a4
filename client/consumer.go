// Package client implements the consuming side of an assist stream: the
// state machine that accumulates chunks, renders them for display, and
// applies the finished result back into the host document.
package client

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pershow/cardagent/agent"
)

// Phase is the consumer's lifecycle state. Transitions are monotonic:
// Idle -> Streaming -> Complete or Errored; only Reset returns to Idle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStreaming Phase = "streaming"
	PhaseComplete  Phase = "complete"
	PhaseErrored   Phase = "errored"
)

// Consumer owns one session's client-side state. It is never shared between
// sessions; a new session starts with Reset followed by StartSession.
type Consumer struct {
	mu sync.Mutex

	phase       Phase
	accumulated strings.Builder
	rendered    string
	status      string
	errMessage  string

	// Captured at session start for Apply.
	snapshot  string
	selection string
}

// NewConsumer creates an idle consumer.
func NewConsumer() *Consumer {
	return &Consumer{phase: PhaseIdle}
}

// StartSession captures the document snapshot and optional selection, clears
// the display and enters Streaming.
func (c *Consumer) StartSession(fullContent, selection string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		return fmt.Errorf("cannot start a session in phase %s", c.phase)
	}
	c.snapshot = fullContent
	c.selection = selection
	c.accumulated.Reset()
	c.rendered = ""
	c.status = ""
	c.errMessage = ""
	c.phase = PhaseStreaming
	return nil
}

// HandleEvent advances the state machine with one stream event. Events after
// a terminal phase are rejected.
func (c *Consumer) HandleEvent(ev agent.StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseStreaming {
		return fmt.Errorf("event received in phase %s", c.phase)
	}

	switch {
	case ev.Error != "":
		c.errMessage = ev.Error
		c.phase = PhaseErrored
	case ev.Done:
		c.phase = PhaseComplete
	case ev.ToolStatus != nil:
		c.status = ev.ToolStatus.Description
	case ev.Content != "":
		c.accumulated.WriteString(ev.Content)
		// Re-render the whole accumulator; chunk boundaries carry no meaning.
		c.rendered = RenderMarkdown(c.accumulated.String())
	}
	return nil
}

// Phase returns the current lifecycle phase.
func (c *Consumer) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Rendered returns the display representation of the accumulated text.
func (c *Consumer) Rendered() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rendered
}

// Status returns the latest tool progress label.
func (c *Consumer) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ErrorMessage returns the terminal error, if the session errored.
func (c *Consumer) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMessage
}

// Apply merges the finished result into the captured document snapshot and
// returns the new whole document. With a captured selection, the first
// literal occurrence of the selection text is replaced; otherwise the whole
// document is replaced. Only valid once the session is Complete.
func (c *Consumer) Apply() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseComplete {
		return "", fmt.Errorf("cannot apply in phase %s", c.phase)
	}

	cleaned := StripCodeFences(c.accumulated.String())
	if c.selection != "" && strings.Contains(c.snapshot, c.selection) {
		return strings.Replace(c.snapshot, c.selection, cleaned, 1), nil
	}
	return cleaned, nil
}

// Copy returns the cleaned result text without touching the document.
func (c *Consumer) Copy() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseComplete {
		return "", fmt.Errorf("cannot copy in phase %s", c.phase)
	}
	return StripCodeFences(c.accumulated.String()), nil
}

// Reset clears all session state and returns to Idle, ready for a fresh
// session.
func (c *Consumer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseIdle
	c.accumulated.Reset()
	c.rendered = ""
	c.status = ""
	c.errMessage = ""
	c.snapshot = ""
	c.selection = ""
}

// StripCodeFences removes one enclosing triple-backtick fence, including an
// optional language tag on the opening line. Text without an enclosing fence
// passes through unchanged.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return trimmed
	}
	inner := lines[1 : len(lines)-1]
	return strings.TrimSpace(strings.Join(inner, "\n"))
}
