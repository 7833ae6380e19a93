package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/domain/ports/repository"
)

// In-memory fakes shared by the worker tests.

type memTxManager struct{}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.TurnJob
	// ctxAware makes writes honor context cancellation the way a real
	// database driver does.
	ctxAware bool
}

func (m *memJobs) ctxErr(ctx context.Context) error {
	if m.ctxAware {
		return ctx.Err()
	}
	return nil
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[string]*model.TurnJob{}} }

func (m *memJobs) Save(_ context.Context, _ repository.Tx, job *model.TurnJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) FindByID(_ context.Context, _ repository.Tx, id string) (*model.TurnJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) ClaimNext(_ context.Context) (*model.TurnJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*model.TurnJob
	for _, j := range m.jobs {
		if j.Status == model.TurnJobPending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(pending, func(i, k int) bool { return pending[i].CreatedAt.Before(pending[k].CreatedAt) })
	j := pending[0]
	if err := j.MarkProcessing(time.Now()); err != nil {
		return nil, err
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) Claim(_ context.Context, id string) (*model.TurnJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotClaimable
	}
	if err := j.MarkProcessing(time.Now()); err != nil {
		return nil, err
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) FindActiveByChat(_ context.Context, _ repository.Tx, chatID string) (*model.TurnJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.TurnJob
	for _, j := range m.jobs {
		if j.ChatID != chatID || !j.Status.Active() {
			continue
		}
		if best == nil || j.CreatedAt.After(best.CreatedAt) {
			best = j
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memJobs) MarkCompleted(ctx context.Context, id string) error {
	if err := m.ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != model.TurnJobProcessing {
		return domain.ErrJobNotClaimable
	}
	return j.MarkCompleted(time.Now())
}

func (m *memJobs) MarkFailed(ctx context.Context, id string, reason string) error {
	if err := m.ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || !j.Status.Active() {
		return domain.ErrJobNotClaimable
	}
	return j.MarkFailed(time.Now(), reason)
}

func (m *memJobs) ReapStale(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status == model.TurnJobProcessing && j.StartedAt != nil && j.StartedAt.Before(olderThan) {
			_ = j.MarkFailed(time.Now(), domain.ErrStaleTimeout.Error())
			n++
		}
	}
	return n, nil
}

func (m *memJobs) get(id string) *model.TurnJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.jobs[id]
	return &cp
}

type memChats struct {
	mu    sync.Mutex
	chats map[string]*model.Chat
}

func newMemChats() *memChats { return &memChats{chats: map[string]*model.Chat{}} }

func (m *memChats) Save(_ context.Context, _ repository.Tx, c *model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.chats[c.ID] = &cp
	return nil
}

func (m *memChats) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chats[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memChats) FindByCompany(_ context.Context, _ repository.Tx, companyID, employeeID string) ([]*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Chat
	for _, c := range m.chats {
		if c.CompanyID != companyID {
			continue
		}
		if employeeID != "" && c.EmployeeID != employeeID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memChats) Delete(_ context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, id)
	return nil
}

type memMessages struct {
	mu       sync.Mutex
	byChat   map[string][]*model.Message
	failNext int
}

func newMemMessages() *memMessages { return &memMessages{byChat: map[string][]*model.Message{}} }

func (m *memMessages) SaveMessage(_ context.Context, _ repository.Tx, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("transient write failure")
	}
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	cp := *msg
	m.byChat[msg.ChatID] = append(m.byChat[msg.ChatID], &cp)
	return nil
}

func (m *memMessages) ListByChat(_ context.Context, _ repository.Tx, chatID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.byChat[chatID]
	out := make([]*model.Message, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}

func (m *memMessages) ListByCompany(_ context.Context, companyID string, page, limit int) (*repository.MessagePage, error) {
	return &repository.MessagePage{Page: page, Limit: limit}, nil
}

type fixedInstructions struct{ text string }

func (f *fixedInstructions) SystemInstruction(context.Context, string, string, int) (string, error) {
	return f.text, nil
}

type fakeAI struct {
	mu      sync.Mutex
	lastReq adapter.TurnRequest
	run     func(ctx context.Context, req adapter.TurnRequest, tools adapter.ToolInvoker, emit adapter.EmitFunc) (*adapter.TurnResult, error)
}

func (f *fakeAI) StreamTurn(ctx context.Context, req adapter.TurnRequest, tools adapter.ToolInvoker, emit adapter.EmitFunc) (*adapter.TurnResult, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return f.run(ctx, req, tools, emit)
}

func (f *fakeAI) ListModels(context.Context) ([]string, error) { return []string{"fake"}, nil }

func (f *fakeAI) CountTokens(_ context.Context, _ string, history []adapter.Turn) (int, error) {
	n := 0
	for _, t := range history {
		n += len(t.Content)
	}
	return n, nil
}

type charCounter struct{}

func (charCounter) Count(text string) int { return len(text) }

type eventSink struct {
	mu     sync.Mutex
	events []model.StreamEvent
	// failAfter > 0 makes emit fail once that many events were accepted.
	failAfter int
}

func (s *eventSink) emit(ev model.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("consumer gone")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *eventSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Event
	}
	return out
}
