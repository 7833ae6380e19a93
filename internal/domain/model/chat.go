package model

import "time"

// Chat is the aggregate root for one helpdesk conversation, owned by a
// tenant (company + employee).
type Chat struct {
	ID         string
	CompanyID  string
	EmployeeID string
	Title      string
	ThreadID   string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewChat(id, companyID, employeeID, title string) *Chat {
	now := time.Now()
	return &Chat{
		ID:         id,
		CompanyID:  companyID,
		EmployeeID: employeeID,
		Title:      title,
		Metadata:   map[string]string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn entry within a chat. Messages are append-only and
// replayed in CreatedAt ascending order.
type Message struct {
	ID        string
	ChatID    string
	Role      MessageRole
	Content   string
	ToolCalls []ToolCall
	CreatedAt time.Time
}

type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCall records one tool invocation made while generating the message
// that owns it. Status transitions pending -> {completed, failed} exactly
// once; the recorded order is the execution order.
type ToolCall struct {
	ID              string
	Type            string
	Name            string
	Arguments       string
	ParsedArguments map[string]any
	Output          string
	Status          ToolCallStatus
	Code            string
	Files           []string
}

// Complete finalizes the call with its output.
func (t *ToolCall) Complete(output string) {
	if t.Status != ToolCallPending {
		return
	}
	t.Status = ToolCallCompleted
	t.Output = output
}

// Fail finalizes the call with an error description as output.
func (t *ToolCall) Fail(output string) {
	if t.Status != ToolCallPending {
		return
	}
	t.Status = ToolCallFailed
	t.Output = output
}
