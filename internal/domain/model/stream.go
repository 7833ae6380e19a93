package model

// Stream event types emitted by provider adapters and relayed verbatim
// to the API boundary. Adapters normalize provider-specific events onto
// this vocabulary but preserve arrival order.
const (
	EventTurnStarted       = "turn.started"
	EventMessageDelta      = "message.delta"
	EventToolCallStarted   = "tool_call.started"
	EventToolCallCompleted = "tool_call.completed"
	EventToolCallFailed    = "tool_call.failed"
	EventTurnCompleted     = "turn.completed"
	EventTurnFailed        = "turn.failed"
)

// StreamEvent is the relay unit: one provider event wrapped for the
// consumer. Data must be JSON-serializable.
type StreamEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type StreamItemType string

const (
	StreamItemMessage  StreamItemType = "message"
	StreamItemToolCall StreamItemType = "tool_call"
)

// StreamItem is the wire/display form of persisted conversation state.
// It is derived, never stored. For an assistant turn, tool_call items are
// always produced before the message item they informed.
type StreamItem struct {
	ID        string         `json:"id"`
	Type      StreamItemType `json:"type"`
	Role      MessageRole    `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolType  string         `json:"tool_type,omitempty"`
	Name      string         `json:"name,omitempty"`
	Status    ToolCallStatus `json:"status,omitempty"`
	Arguments string         `json:"arguments,omitempty"`
	Output    string         `json:"output,omitempty"`
}
