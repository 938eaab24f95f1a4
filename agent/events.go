package agent

// ToolStatus is the human-readable progress label for one tool invocation.
type ToolStatus struct {
	Description string `json:"description"`
}

// StreamEvent is one message on a session's stream. Exactly one of the fields
// is meaningful: Content for an incremental answer chunk, ToolStatus for a
// progress label, Done or Error as the single terminal event.
type StreamEvent struct {
	Content    string      `json:"content,omitempty"`
	ToolStatus *ToolStatus `json:"tool_status,omitempty"`
	Done       bool        `json:"done,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ContentEvent wraps an incremental answer chunk.
func ContentEvent(text string) StreamEvent {
	return StreamEvent{Content: text}
}

// ToolStatusEvent wraps a progress label.
func ToolStatusEvent(description string) StreamEvent {
	return StreamEvent{ToolStatus: &ToolStatus{Description: description}}
}

// DoneEvent is the successful terminal event.
func DoneEvent() StreamEvent {
	return StreamEvent{Done: true}
}

// ErrorEvent is the failing terminal event. The message is shown to the user
// as-is.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Error: message}
}

// Terminal reports whether the event ends the session.
func (e StreamEvent) Terminal() bool {
	return e.Done || e.Error != ""
}
