// Package stream routes orchestrator events to session subscribers.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/pershow/cardagent/agent"
	"github.com/pershow/cardagent/internal/logger"
	"go.uber.org/zap"
)

// subscriberBuffer is the per-session channel depth. A subscriber that falls
// further behind loses non-terminal events; delivery is at-most-once.
const subscriberBuffer = 64

type session struct {
	ch     chan agent.StreamEvent
	cancel context.CancelFunc
	closed bool
}

// Broadcaster is the concurrency-safe routing table from session id to the
// session's single subscriber. Publish is fire-and-forget: events published
// with no subscriber attached, or after the subscriber fell behind, are
// dropped. The session id is the only access control for a stream, so ids
// must come from an unguessable source.
type Broadcaster struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{sessions: make(map[string]*session)}
}

// Open registers a session before its run starts. cancel is invoked when the
// subscriber detaches so the orchestrator can stop early.
func (b *Broadcaster) Open(sessionID string, cancel context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[sessionID] = &session{cancel: cancel}
}

// Subscribe attaches the single subscriber to a session and returns its event
// channel. The channel is closed after the terminal event or on Unsubscribe.
func (b *Broadcaster) Subscribe(sessionID string) (<-chan agent.StreamEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", sessionID)
	}
	if s.ch != nil {
		return nil, fmt.Errorf("session %q already has a subscriber", sessionID)
	}
	s.ch = make(chan agent.StreamEvent, subscriberBuffer)
	return s.ch, nil
}

// Publish delivers an event to the session's subscriber, if any. A terminal
// event closes the subscriber channel and removes the session from the table.
func (b *Broadcaster) Publish(sessionID string, event agent.StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionID]
	if !ok {
		return
	}

	if s.ch != nil && !s.closed {
		select {
		case s.ch <- event:
		default:
			if event.Terminal() {
				// The terminal event must reach the subscriber so the client
				// can leave the streaming phase; evict the oldest buffered
				// event to make room. Publish is serialized by the mutex, so
				// after the eviction the send cannot block.
				select {
				case <-s.ch:
				default:
				}
				s.ch <- event
				logger.Warn("Subscriber channel full, evicted an event for the terminal",
					zap.String("session_id", sessionID))
			} else {
				logger.Warn("Subscriber channel full, dropping event",
					zap.String("session_id", sessionID))
			}
		}
		if event.Terminal() {
			close(s.ch)
			s.closed = true
		}
	}

	if event.Terminal() {
		delete(b.sessions, sessionID)
	}
}

// Unsubscribe detaches the subscriber, removes the session and signals
// cancellation to its run. Safe to call for unknown or finished sessions.
func (b *Broadcaster) Unsubscribe(sessionID string) {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	if ok {
		if s.ch != nil && !s.closed {
			close(s.ch)
			s.closed = true
		}
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if ok && s.cancel != nil {
		s.cancel()
	}
}

// CloseAll closes every live subscriber channel, signals cancellation to
// every registered session and clears the routing table. Used on gateway
// shutdown so no subscription outlives the server.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(b.sessions))
	for id, s := range b.sessions {
		if s.ch != nil && !s.closed {
			close(s.ch)
			s.closed = true
		}
		if s.cancel != nil {
			cancels = append(cancels, s.cancel)
		}
		delete(b.sessions, id)
	}
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// SessionCount reports how many sessions are currently registered.
func (b *Broadcaster) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
