package adapter

import (
	"context"

	"helpdesk-assistant/internal/domain/model"
)

// Turn is one provider-native conversation entry: role plus textual
// content only. Tool-call detail is never replayed into model context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes one tool the model may invoke mid-generation.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// ToolInvoker executes one tool call synchronously and returns the
// realized record. Implementations never return an error for tool-level
// failures; those surface as a ToolCall with status "failed" whose
// output is fed back to the model.
type ToolInvoker interface {
	Invoke(ctx context.Context, callID, name, arguments string) model.ToolCall
}

// EmitFunc relays one provider event to the consumer as it arrives.
// A non-nil return signals the consumer is gone; the adapter must abort
// the upstream exchange.
type EmitFunc func(ev model.StreamEvent) error

// TurnRequest is the full model input for one streaming exchange.
type TurnRequest struct {
	Model        string
	Instructions string
	History      []Turn
	Tools        []ToolDefinition
}

// Usage as reported by the provider for the whole exchange.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// TurnResult is the assembled outcome of a finished exchange.
type TurnResult struct {
	Content   string
	ToolCalls []model.ToolCall
	Usage     Usage
}

// LLMStreamAdapter is the port for one streaming chat-turn exchange.
//
// StreamTurn opens a single exchange configured for sequential tool
// execution: when the provider emits a tool invocation the adapter
// suspends generation output, runs the tool via `tools`, feeds the
// output back into the same exchange, and resumes. Every provider event
// is forwarded through `emit` in arrival order. The call returns once
// generation finishes or the context / consumer cancels.
type LLMStreamAdapter interface {
	StreamTurn(ctx context.Context, req TurnRequest, tools ToolInvoker, emit EmitFunc) (*TurnResult, error)
	ListModels(ctx context.Context) ([]string, error)
	CountTokens(ctx context.Context, m string, history []Turn) (int, error)
}

// InstructionProvider yields the per-tenant/per-employee system
// instruction (derived from tenant configuration, an external
// collaborator accessed as simple CRUD).
type InstructionProvider interface {
	SystemInstruction(ctx context.Context, companyID, employeeID string, personalityLevel int) (string, error)
}
