// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"helpdesk-assistant/internal/domain/ports/adapter"
)

var _ adapter.LLMStreamAdapter = (*MultiAdapter)(nil)

// MultiAdapter routes each exchange to a provider by model name.
type MultiAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.LLMStreamAdapter
	modelToProvider map[string]string
}

// NewMultiAdapter does not inject any default model; it only knows a
// default provider. Each provider adapter carries its own default model.
func NewMultiAdapter(
	defaultProvider string,
	byProvider map[string]adapter.LLMStreamAdapter,
	modelToProvider map[string]string,
) *MultiAdapter {
	return &MultiAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAdapter) pick(model string) adapter.LLMStreamAdapter {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil {
		return a
	}
	// last resort: first available
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiAdapter) StreamTurn(ctx context.Context, req adapter.TurnRequest, tools adapter.ToolInvoker, emit adapter.EmitFunc) (*adapter.TurnResult, error) {
	a := m.pick(req.Model)
	if a == nil {
		return nil, errors.New("no provider configured")
	}
	return a.StreamTurn(ctx, req, tools, emit)
}

func (m *MultiAdapter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(m.modelToProvider)+4)

	for model := range m.modelToProvider {
		if _, ok := seen[model]; !ok {
			seen[model] = struct{}{}
			out = append(out, model)
		}
	}
	for _, a := range m.byProvider {
		list, _ := a.ListModels(ctx)
		for _, name := range list {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func (m *MultiAdapter) CountTokens(ctx context.Context, model string, history []adapter.Turn) (int, error) {
	a := m.pick(model)
	if a == nil {
		return 0, nil
	}
	return a.CountTokens(ctx, model, history)
}
