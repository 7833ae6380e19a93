package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkoukk/tiktoken-go"

	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.LLMStreamAdapter = (*OpenAIAdapter)(nil)

// maxToolRounds bounds the tool loop so a model that keeps asking for
// tools cannot hold an exchange open forever.
const maxToolRounds = 8

// OpenAIAdapter implements the streaming turn port on the Chat
// Completions API.
type OpenAIAdapter struct {
	client       openai.Client
	defaultModel string
}

func NewOpenAIAdapter(apiKey, baseURL, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return []string{o.defaultModel}, nil
	}
	out := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

func (o *OpenAIAdapter) CountTokens(ctx context.Context, m string, history []adapter.Turn) (int, error) {
	enc, err := tiktoken.EncodingForModel(modelOrDefault(m, o.defaultModel))
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, t := range history {
		total += len(enc.Encode(t.Content, nil, nil))
	}
	return total, nil
}

// StreamTurn runs one exchange with sequential tool execution. Deltas
// are relayed through emit as they arrive; when a round finishes on
// finish_reason "tool_calls" the calls are invoked one at a time, each
// output fed back before the next round opens.
func (o *OpenAIAdapter) StreamTurn(ctx context.Context, req adapter.TurnRequest, tools adapter.ToolInvoker, emit adapter.EmitFunc) (*adapter.TurnResult, error) {
	start := time.Now()
	m := modelOrDefault(req.Model, o.defaultModel)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m),
		Messages: toOpenAIMessages(req.Instructions, req.History),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
		// One tool at a time: outputs must land in context before the
		// model decides its next step.
		params.ParallelToolCalls = openai.Bool(false)
	}

	result := &adapter.TurnResult{}

	for round := 0; round < maxToolRounds; round++ {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				metrics.IncStreamEvent(model.EventMessageDelta)
				ev := model.StreamEvent{
					Event: model.EventMessageDelta,
					Data:  map[string]string{"content": chunk.Choices[0].Delta.Content},
				}
				if err := emit(ev); err != nil {
					_ = stream.Close()
					return nil, err
				}
			}
		}
		if err := stream.Err(); err != nil {
			return nil, fmt.Errorf("openai stream: %w", err)
		}
		if len(acc.Choices) == 0 {
			return nil, errors.New("openai stream: no choices")
		}

		choice := acc.Choices[0]
		result.Content += choice.Message.Content
		addUsage(&result.Usage, acc.Usage)

		if choice.FinishReason != "tool_calls" || len(choice.Message.ToolCalls) == 0 {
			break
		}

		// The assistant turn carrying the calls must precede their tool
		// outputs in the replayed context.
		params.Messages = append(params.Messages, choice.Message.ToParam())

		for _, tc := range choice.Message.ToolCalls {
			call, err := runTool(ctx, tools, emit, tc.ID, tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				return nil, err
			}
			result.ToolCalls = append(result.ToolCalls, call)
			params.Messages = append(params.Messages, openai.ToolMessage(call.Output, tc.ID))
		}
	}

	metrics.ObserveExchange("openai", m,
		result.Usage.PromptTokens, result.Usage.CompletionTokens,
		int(time.Since(start).Milliseconds()), true)
	return result, nil
}

// runTool emits the started/terminal events around a single invocation.
// Tool failures never abort the exchange; the failed output goes back to
// the model like any other.
func runTool(ctx context.Context, tools adapter.ToolInvoker, emit adapter.EmitFunc, callID, name, arguments string) (model.ToolCall, error) {
	startEv := model.StreamEvent{
		Event: model.EventToolCallStarted,
		Data:  map[string]string{"id": callID, "name": name, "arguments": arguments},
	}
	metrics.IncStreamEvent(model.EventToolCallStarted)
	if err := emit(startEv); err != nil {
		return model.ToolCall{}, err
	}

	call := tools.Invoke(ctx, callID, name, arguments)

	event := model.EventToolCallCompleted
	if call.Status == model.ToolCallFailed {
		event = model.EventToolCallFailed
	}
	metrics.IncStreamEvent(event)
	doneEv := model.StreamEvent{
		Event: event,
		Data: map[string]string{
			"id":     call.ID,
			"name":   call.Name,
			"output": call.Output,
			"code":   call.Code,
		},
	}
	if err := emit(doneEv); err != nil {
		return model.ToolCall{}, err
	}
	return call, nil
}

func toOpenAIMessages(instructions string, history []adapter.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if instructions != "" {
		msgs = append(msgs, openai.SystemMessage(instructions))
	}
	for _, t := range history {
		switch t.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return msgs
}

func toOpenAITools(defs []adapter.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  shared.FunctionParameters(d.Parameters),
		}))
	}
	return out
}

func addUsage(u *adapter.Usage, cu openai.CompletionUsage) {
	u.PromptTokens += int(cu.PromptTokens)
	u.CompletionTokens += int(cu.CompletionTokens)
	u.TotalTokens += int(cu.TotalTokens)
}

func modelOrDefault(m, def string) string {
	if m != "" {
		return m
	}
	return def
}
