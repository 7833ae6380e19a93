package ai

import (
	"context"
	"time"

	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
)

var _ adapter.LLMStreamAdapter = (*NoopAdapter)(nil)

// NoopAdapter implements the streaming port for local/dev runs without
// provider credentials. It echoes a canned reply as a short stream.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter {
	return &NoopAdapter{}
}

func (a *NoopAdapter) StreamTurn(ctx context.Context, req adapter.TurnRequest, _ adapter.ToolInvoker, emit adapter.EmitFunc) (*adapter.TurnResult, error) {
	const reply = "This is a local development response."
	for _, word := range []string{"This ", "is ", "a ", "local ", "development ", "response."} {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		ev := model.StreamEvent{
			Event: model.EventMessageDelta,
			Data:  map[string]string{"content": word},
		}
		if err := emit(ev); err != nil {
			return nil, err
		}
	}
	return &adapter.TurnResult{Content: reply}, nil
}

func (a *NoopAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-model"}, nil
}

func (a *NoopAdapter) CountTokens(ctx context.Context, m string, history []adapter.Turn) (int, error) {
	n := 0
	for _, t := range history {
		n += len(t.Content) / 4
	}
	return n, nil
}
