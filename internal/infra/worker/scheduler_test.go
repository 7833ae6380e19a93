package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
)

func newTestScheduler(f *fixture) *Scheduler {
	log := zerolog.Nop()
	return NewScheduler(f.jobs, f.processor, NewPool(2, &log), time.Hour, 5*time.Minute, 10, &log)
}

func TestRunBatchProcessesPendingJobs(t *testing.T) {
	ai := &fakeAI{run: func(context.Context, adapter.TurnRequest, adapter.ToolInvoker, adapter.EmitFunc) (*adapter.TurnResult, error) {
		return &adapter.TurnResult{Content: "done"}, nil
	}}
	f := newFixture(t, ai)
	ctx := context.Background()

	for _, chatID := range []string{"chat-a", "chat-b", "chat-c"} {
		chat := model.NewChat(chatID, "co-1", "emp-1", "t")
		_ = f.chats.Save(ctx, nil, chat)
		_ = f.msgs.SaveMessage(ctx, nil, &model.Message{ChatID: chatID, Role: model.RoleUser, Content: "hi", CreatedAt: time.Now()})
		_ = f.jobs.Save(ctx, nil, model.NewTurnJob("", chatID, "co-1", "emp-1"))
	}

	sum := newTestScheduler(f).RunBatch(ctx)
	if sum.Processed != 3 || sum.Completed != 3 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRunBatchIsolatesPerJobFailure(t *testing.T) {
	ai := &fakeAI{run: func(context.Context, adapter.TurnRequest, adapter.ToolInvoker, adapter.EmitFunc) (*adapter.TurnResult, error) {
		return &adapter.TurnResult{Content: "done"}, nil
	}}
	f := newFixture(t, ai)
	ctx := context.Background()

	// chat-good exists; chat-orphan does not, so its job must fail
	// without aborting the batch.
	good := model.NewChat("chat-good", "co-1", "emp-1", "t")
	_ = f.chats.Save(ctx, nil, good)
	_ = f.msgs.SaveMessage(ctx, nil, &model.Message{ChatID: "chat-good", Role: model.RoleUser, Content: "hi", CreatedAt: time.Now()})

	orphan := model.NewTurnJob("", "chat-orphan", "co-1", "emp-1")
	_ = f.jobs.Save(ctx, nil, orphan)
	time.Sleep(time.Millisecond)
	_ = f.jobs.Save(ctx, nil, model.NewTurnJob("", "chat-good", "co-1", "emp-1"))

	sum := newTestScheduler(f).RunBatch(ctx)
	if sum.Processed != 2 || sum.Completed != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Errors) != 1 {
		t.Fatalf("expected one error, got %v", sum.Errors)
	}
	if got := f.jobs.get(orphan.ID).Status; got != model.TurnJobFailed {
		t.Fatalf("orphan job status = %s, want failed", got)
	}
}

func TestRunBatchReapsStaleJobs(t *testing.T) {
	ai := &fakeAI{run: func(context.Context, adapter.TurnRequest, adapter.ToolInvoker, adapter.EmitFunc) (*adapter.TurnResult, error) {
		return &adapter.TurnResult{Content: "done"}, nil
	}}
	f := newFixture(t, ai)
	ctx := context.Background()

	stale := model.NewTurnJob("", "chat-stuck", "co-1", "emp-1")
	_ = f.jobs.Save(ctx, nil, stale)
	claimed, err := f.jobs.Claim(ctx, stale.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	old := time.Now().Add(-10 * time.Minute)
	claimed.StartedAt = &old
	_ = f.jobs.Save(ctx, nil, claimed)

	sum := newTestScheduler(f).RunBatch(ctx)
	if sum.Reaped != 1 {
		t.Fatalf("summary = %+v, want one reaped", sum)
	}
	got := f.jobs.get(stale.ID)
	if got.Status != model.TurnJobFailed || got.LastError != domain.ErrStaleTimeout.Error() {
		t.Fatalf("reaped job = %+v", got)
	}
}

func TestRecentProcessingJobSurvivesReap(t *testing.T) {
	ai := &fakeAI{run: func(context.Context, adapter.TurnRequest, adapter.ToolInvoker, adapter.EmitFunc) (*adapter.TurnResult, error) {
		return &adapter.TurnResult{Content: "done"}, nil
	}}
	f := newFixture(t, ai)
	ctx := context.Background()

	fresh := model.NewTurnJob("", "chat-live", "co-1", "emp-1")
	_ = f.jobs.Save(ctx, nil, fresh)
	if _, err := f.jobs.Claim(ctx, fresh.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	sum := newTestScheduler(f).RunBatch(ctx)
	if sum.Reaped != 0 {
		t.Fatalf("fresh processing job must not be reaped: %+v", sum)
	}
	if got := f.jobs.get(fresh.ID).Status; got != model.TurnJobProcessing {
		t.Fatalf("job status = %s, want processing", got)
	}
}

func TestConcurrentClaimsNeverShareAJob(t *testing.T) {
	f := newFixture(t, &fakeAI{run: func(context.Context, adapter.TurnRequest, adapter.ToolInvoker, adapter.EmitFunc) (*adapter.TurnResult, error) {
		return &adapter.TurnResult{}, nil
	}})
	ctx := context.Background()

	const jobs = 20
	for i := 0; i < jobs; i++ {
		_ = f.jobs.Save(ctx, nil, model.NewTurnJob("", "chat-x", "co-1", "emp-1"))
	}

	var mu sync.Mutex
	claimed := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := f.jobs.ClaimNext(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}
