package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pershow/cardagent/agent"
)

// AssistParams mirrors the gateway's session-creating request body.
type AssistParams struct {
	Action      string            `json:"action"`
	FullContent string            `json:"full_content"`
	Selection   string            `json:"selection,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Depth       string            `json:"depth,omitempty"`
}

// StreamClient talks to the gateway: it starts sessions and drives a
// Consumer from the session's websocket stream.
type StreamClient struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewStreamClient creates a client for a gateway at baseURL (http or https).
func NewStreamClient(baseURL string) *StreamClient {
	return &StreamClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     websocket.DefaultDialer,
	}
}

// Assist starts a session and returns its stream id.
func (c *StreamClient) Assist(ctx context.Context, params AssistParams) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/assist", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assist request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		StreamID string `json:"stream_id"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("assist response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.StreamID == "" {
		if out.Error != "" {
			return "", fmt.Errorf("assist rejected: %s", out.Error)
		}
		return "", fmt.Errorf("assist rejected with status %d", resp.StatusCode)
	}
	return out.StreamID, nil
}

// Stream subscribes to a session and feeds its events into the consumer
// until the terminal event, the server closes, or ctx is cancelled.
func (c *StreamClient) Stream(ctx context.Context, streamID string, consumer *Consumer) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws?stream=" + streamID

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("subscribe failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("subscribe failed: %w", err)
	}
	defer conn.Close()

	// Cancellation unblocks the read by closing the connection.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev agent.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read: %w", err)
		}
		if err := consumer.HandleEvent(ev); err != nil {
			return err
		}
		if ev.Terminal() {
			return nil
		}
	}
}
