package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/infra/metrics"
)

// Error codes recorded on failed tool calls.
const (
	CodeUnknownTool    = "UNKNOWN_TOOL"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeToolError      = "TOOL_ERROR"
)

// Dispatcher resolves tool names against the registry, injects tenant
// context and converts every failure mode into a failed ToolCall. Tool
// failure never aborts the turn: the orchestrator feeds the failure
// output back to the model.
type Dispatcher struct {
	reg *Registry
	log *zerolog.Logger
}

func NewDispatcher(reg *Registry, log *zerolog.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, log: log}
}

// Registry exposes the immutable registry for definition lookups.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Dispatch runs one tool call to a terminal status. The returned
// ToolCall is always finalized: completed with the handler output, or
// failed with a descriptive output and error code.
func (d *Dispatcher) Dispatch(ctx context.Context, callID, name, arguments string, tenant *TenantContext) model.ToolCall {
	if callID == "" {
		callID = uuid.NewString()
	}
	call := model.ToolCall{
		ID:        callID,
		Type:      "function",
		Name:      name,
		Arguments: arguments,
		Status:    model.ToolCallPending,
	}

	args := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			call.Code = CodeInvalidRequest
			call.Fail(fmt.Sprintf("malformed tool arguments: %v", err))
			metrics.IncToolDispatch(name, string(call.Status))
			return call
		}
	}
	call.ParsedArguments = args

	h := d.reg.Lookup(name)
	if h == nil {
		call.Code = CodeUnknownTool
		call.Fail(fmt.Sprintf("%s: %s", domain.ErrUnknownTool, name))
		d.log.Warn().Str("tool", name).Msg("dispatch of unknown tool")
		metrics.IncToolDispatch(name, string(call.Status))
		return call
	}
	if h.TenantScoped() && tenant == nil {
		call.Code = CodeInvalidRequest
		call.Fail(fmt.Sprintf("tool %s requires tenant context", name))
		metrics.IncToolDispatch(name, string(call.Status))
		return call
	}

	out, err := d.execute(ctx, h, tenant, args)
	if err != nil {
		call.Code = CodeToolError
		call.Fail(err.Error())
		d.log.Error().Err(err).Str("tool", name).Msg("tool handler failed")
	} else {
		call.Complete(out)
	}
	metrics.IncToolDispatch(name, string(call.Status))
	return call
}

// execute isolates handler panics so a broken tool cannot take the turn
// down with it.
func (d *Dispatcher) execute(ctx context.Context, h Handler, tenant *TenantContext, args map[string]any) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool handler panic: %v", rec)
		}
	}()
	return h.Execute(ctx, tenant, args)
}

// Invoker binds a tenant context, yielding the adapter-facing invoker
// handed to LLM adapters for mid-stream calls.
func (d *Dispatcher) Invoker(tenant *TenantContext) adapter.ToolInvoker {
	return &boundInvoker{d: d, tenant: tenant}
}

type boundInvoker struct {
	d      *Dispatcher
	tenant *TenantContext
}

func (b *boundInvoker) Invoke(ctx context.Context, callID, name, arguments string) model.ToolCall {
	return b.d.Dispatch(ctx, callID, name, arguments, b.tenant)
}
