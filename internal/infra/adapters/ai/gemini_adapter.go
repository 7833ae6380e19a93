// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/infra/metrics"
)

var _ adapter.LLMStreamAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	models := g.client.Models.All(ctx)
	var out []string
	for m := range models {
		if m.Name != "" {
			out = append(out, m.Name)
		}
	}
	if len(out) == 0 {
		out = []string{g.defaultModel}
	}
	return out, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, m string, history []adapter.Turn) (int, error) {
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(m, g.defaultModel), toGenAIHistory(history), nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

// StreamTurn mirrors the OpenAI adapter's sequential tool loop on the
// Gemini API: each round streams to completion, any function calls are
// invoked one at a time, and their responses are replayed before the
// next round.
func (g *GeminiAdapter) StreamTurn(ctx context.Context, req adapter.TurnRequest, tools adapter.ToolInvoker, emit adapter.EmitFunc) (*adapter.TurnResult, error) {
	start := time.Now()
	m := modelOrDefault(req.Model, g.defaultModel)

	config := &genai.GenerateContentConfig{}
	if g.maxOut > 0 {
		config.MaxOutputTokens = int32(g.maxOut)
	}
	if req.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = toGenAITools(req.Tools)
	}

	contents := toGenAIHistory(req.History)
	result := &adapter.TurnResult{}

	for round := 0; round < maxToolRounds; round++ {
		var calls []*genai.FunctionCall
		var roundParts []*genai.Part

		for resp, err := range g.client.Models.GenerateContentStream(ctx, m, contents, config) {
			if err != nil {
				return nil, err
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				roundParts = append(roundParts, part)
				if part.Text != "" {
					result.Content += part.Text
					metrics.IncStreamEvent(model.EventMessageDelta)
					ev := model.StreamEvent{
						Event: model.EventMessageDelta,
						Data:  map[string]string{"content": part.Text},
					}
					if err := emit(ev); err != nil {
						return nil, err
					}
				}
				if part.FunctionCall != nil {
					calls = append(calls, part.FunctionCall)
				}
			}
			if resp.UsageMetadata != nil {
				result.Usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
				result.Usage.CompletionTokens += int(resp.UsageMetadata.CandidatesTokenCount)
				result.Usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
			}
		}

		if len(calls) == 0 {
			break
		}

		contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: roundParts})

		var respParts []*genai.Part
		for _, fc := range calls {
			args := genaiArgsJSON(fc.Args)
			call, err := runTool(ctx, tools, emit, fc.ID, fc.Name, args)
			if err != nil {
				return nil, err
			}
			result.ToolCalls = append(result.ToolCalls, call)
			respParts = append(respParts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: map[string]any{"output": call.Output},
			}})
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: respParts})
	}

	metrics.ObserveExchange("gemini", m,
		result.Usage.PromptTokens, result.Usage.CompletionTokens,
		int(time.Since(start).Milliseconds()), true)
	return result, nil
}

func genaiArgsJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func toGenAITools(defs []adapter.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGenAIHistory(turns []adapter.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.RoleUser
		if strings.ToLower(t.Role) == "assistant" || strings.ToLower(t.Role) == "model" {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}
	return out
}
