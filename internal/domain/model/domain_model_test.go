//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"helpdesk-assistant/internal/domain"
)

// --- TurnJob Tests ---

func TestNewTurnJob(t *testing.T) {
	job := NewTurnJob("job-1", "chat-1", "co-1", "emp-1")

	if job.Status != TurnJobPending {
		t.Errorf("expected status pending, got %s", job.Status)
	}
	if !job.Status.Active() {
		t.Error("expected a fresh job to count as active")
	}
	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Error("expected start and completion timestamps to be unset")
	}
}

func TestTurnJobLifecycle(t *testing.T) {
	t.Run("happy path pending to completed", func(t *testing.T) {
		job := NewTurnJob("job-1", "chat-1", "co-1", "emp-1")
		now := time.Now()

		if err := job.MarkProcessing(now); err != nil {
			t.Fatalf("mark processing: %v", err)
		}
		if job.StartedAt == nil || !job.StartedAt.Equal(now) {
			t.Errorf("expected StartedAt = %v, got %v", now, job.StartedAt)
		}
		if err := job.MarkCompleted(now); err != nil {
			t.Fatalf("mark completed: %v", err)
		}
		if !job.Status.Terminal() || job.Status.Active() {
			t.Errorf("completed job should be terminal and inactive, got %s", job.Status)
		}
	})

	t.Run("cannot claim twice", func(t *testing.T) {
		job := NewTurnJob("job-1", "chat-1", "co-1", "emp-1")
		_ = job.MarkProcessing(time.Now())

		if err := job.MarkProcessing(time.Now()); !errors.Is(err, domain.ErrJobNotClaimable) {
			t.Errorf("expected ErrJobNotClaimable, got %v", err)
		}
	})

	t.Run("cannot complete an unclaimed job", func(t *testing.T) {
		job := NewTurnJob("job-1", "chat-1", "co-1", "emp-1")

		if err := job.MarkCompleted(time.Now()); !errors.Is(err, domain.ErrJobNotClaimable) {
			t.Errorf("expected ErrJobNotClaimable, got %v", err)
		}
	})

	t.Run("fail is allowed from pending", func(t *testing.T) {
		job := NewTurnJob("job-1", "chat-1", "co-1", "emp-1")

		if err := job.MarkFailed(time.Now(), "worker queue full"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		if job.LastError != "worker queue full" {
			t.Errorf("expected failure reason recorded, got %q", job.LastError)
		}
	})

	t.Run("terminal states are frozen", func(t *testing.T) {
		job := NewTurnJob("job-1", "chat-1", "co-1", "emp-1")
		_ = job.MarkProcessing(time.Now())
		_ = job.MarkCompleted(time.Now())

		if err := job.MarkFailed(time.Now(), "late failure"); !errors.Is(err, domain.ErrJobNotClaimable) {
			t.Errorf("expected ErrJobNotClaimable, got %v", err)
		}
		if job.Status != TurnJobCompleted {
			t.Errorf("status changed after terminal transition: %s", job.Status)
		}
	})
}

// --- ToolCall Tests ---

func TestToolCallTransitions(t *testing.T) {
	t.Run("complete finalizes once", func(t *testing.T) {
		call := ToolCall{ID: "tc-1", Name: "search_articles", Status: ToolCallPending}
		call.Complete(`{"hits":[]}`)

		if call.Status != ToolCallCompleted || call.Output != `{"hits":[]}` {
			t.Errorf("unexpected state after complete: %+v", call)
		}

		call.Fail("too late")
		if call.Status != ToolCallCompleted || call.Output != `{"hits":[]}` {
			t.Errorf("terminal call must not change: %+v", call)
		}
	})

	t.Run("fail finalizes once", func(t *testing.T) {
		call := ToolCall{ID: "tc-1", Name: "search_articles", Status: ToolCallPending}
		call.Fail("tool exploded")

		if call.Status != ToolCallFailed || call.Output != "tool exploded" {
			t.Errorf("unexpected state after fail: %+v", call)
		}

		call.Complete("never mind")
		if call.Status != ToolCallFailed {
			t.Errorf("terminal call must not change: %+v", call)
		}
	})
}

// --- Chat Tests ---

func TestNewChat(t *testing.T) {
	chat := NewChat("chat-1", "co-1", "emp-1", "printer trouble")

	if chat.Metadata == nil {
		t.Error("expected metadata map to be initialized")
	}
	if chat.CreatedAt.IsZero() || !chat.CreatedAt.Equal(chat.UpdatedAt) {
		t.Error("expected CreatedAt and UpdatedAt to be set together")
	}
}
