package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
)

type stubTool struct {
	name    string
	scoped  bool
	out     string
	err     error
	panics  bool
	gotArgs map[string]any
	gotTC   *TenantContext
}

func (s *stubTool) Definition() adapter.ToolDefinition {
	return adapter.ToolDefinition{Name: s.name, Parameters: map[string]any{"type": "object"}}
}
func (s *stubTool) TenantScoped() bool { return s.scoped }
func (s *stubTool) Execute(ctx context.Context, tenant *TenantContext, args map[string]any) (string, error) {
	s.gotArgs = args
	s.gotTC = tenant
	if s.panics {
		panic("boom")
	}
	return s.out, s.err
}

func newTestDispatcher(t *testing.T, handlers ...Handler) *Dispatcher {
	t.Helper()
	reg, err := NewRegistry(handlers...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	log := zerolog.Nop()
	return NewDispatcher(reg, &log)
}

func TestDispatchSuccess(t *testing.T) {
	h := &stubTool{name: "echo", out: "hello"}
	d := newTestDispatcher(t, h)

	call := d.Dispatch(context.Background(), "tc-1", "echo", `{"q":"x"}`, nil)
	if call.Status != model.ToolCallCompleted {
		t.Fatalf("status = %s, want completed (output %q)", call.Status, call.Output)
	}
	if call.Output != "hello" || call.ID != "tc-1" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if h.gotArgs["q"] != "x" {
		t.Fatalf("arguments not parsed: %+v", h.gotArgs)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t)

	call := d.Dispatch(context.Background(), "", "nope", "{}", nil)
	if call.Status != model.ToolCallFailed || call.Code != CodeUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL failure, got %+v", call)
	}
	if !strings.Contains(call.Output, domain.ErrUnknownTool.Error()) {
		t.Fatalf("failed call must name the unknown tool error, got %q", call.Output)
	}
}

func TestDispatchTenantScopedWithoutContext(t *testing.T) {
	d := newTestDispatcher(t, &stubTool{name: "tickets", scoped: true})

	call := d.Dispatch(context.Background(), "", "tickets", "{}", nil)
	if call.Status != model.ToolCallFailed || call.Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST failure, got %+v", call)
	}
}

func TestDispatchInjectsTenantContext(t *testing.T) {
	h := &stubTool{name: "tickets", scoped: true, out: "ok"}
	d := newTestDispatcher(t, h)

	tc := &TenantContext{UserID: "u1", CompanyID: "c1"}
	call := d.Dispatch(context.Background(), "", "tickets", "{}", tc)
	if call.Status != model.ToolCallCompleted {
		t.Fatalf("unexpected failure: %+v", call)
	}
	if h.gotTC == nil || h.gotTC.CompanyID != "c1" {
		t.Fatalf("tenant context not injected: %+v", h.gotTC)
	}
}

func TestDispatchHandlerErrorBecomesFailedCall(t *testing.T) {
	d := newTestDispatcher(t, &stubTool{name: "broken", err: errors.New("db down")})

	call := d.Dispatch(context.Background(), "", "broken", "{}", nil)
	if call.Status != model.ToolCallFailed || call.Output != "db down" {
		t.Fatalf("expected failed call with handler error, got %+v", call)
	}
}

func TestDispatchHandlerPanicRecovered(t *testing.T) {
	d := newTestDispatcher(t, &stubTool{name: "panicky", panics: true})

	call := d.Dispatch(context.Background(), "", "panicky", "{}", nil)
	if call.Status != model.ToolCallFailed {
		t.Fatalf("panic must become a failed call, got %+v", call)
	}
}

func TestDispatchMalformedArguments(t *testing.T) {
	d := newTestDispatcher(t, &stubTool{name: "echo"})

	call := d.Dispatch(context.Background(), "", "echo", `{"q":`, nil)
	if call.Status != model.ToolCallFailed || call.Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for malformed args, got %+v", call)
	}
}

func TestRegistryDefinitionsHonorsEnabledSet(t *testing.T) {
	reg, err := NewRegistry(&stubTool{name: "a"}, &stubTool{name: "b"}, &stubTool{name: "c"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	defs := reg.Definitions([]string{"c", "a", "missing"})
	if len(defs) != 2 || defs[0].Name != "c" || defs[1].Name != "a" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
	if got := len(reg.Definitions(nil)); got != 3 {
		t.Fatalf("nil enabled set should return all, got %d", got)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(&stubTool{name: "x"}, &stubTool{name: "x"}); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}
