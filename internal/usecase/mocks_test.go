package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/domain/ports/repository"
)

// Hand-rolled in-memory fakes for the use-case tests.

type memChatRepo struct {
	mu    sync.Mutex
	chats map[string]*model.Chat
}

func newMemChatRepo() *memChatRepo { return &memChatRepo{chats: map[string]*model.Chat{}} }

func (m *memChatRepo) Save(_ context.Context, _ repository.Tx, c *model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.chats[c.ID] = &cp
	return nil
}

func (m *memChatRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chats[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memChatRepo) FindByCompany(_ context.Context, _ repository.Tx, companyID, employeeID string) ([]*model.Chat, error) {
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

func (m *memChatRepo) Delete(_ context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, id)
	return nil
}

type memMsgRepo struct {
	mu     sync.Mutex
	byChat map[string][]*model.Message
	owner  *memChatRepo
}

func newMemMsgRepo(owner *memChatRepo) *memMsgRepo {
	return &memMsgRepo{byChat: map[string][]*model.Message{}, owner: owner}
}

func (m *memMsgRepo) SaveMessage(_ context.Context, _ repository.Tx, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	cp := *msg
	m.byChat[msg.ChatID] = append(m.byChat[msg.ChatID], &cp)
	return nil
}

func (m *memMsgRepo) ListByChat(_ context.Context, _ repository.Tx, chatID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.byChat[chatID]
	out := make([]*model.Message, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		out[i] = &cp
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *memMsgRepo) ListByCompany(ctx context.Context, companyID string, page, limit int) (*repository.MessagePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Message
	for chatID, msgs := range m.byChat {
		chat := m.owner.chats[chatID]
		if chat == nil || chat.CompanyID != companyID {
			continue
		}
		all = append(all, msgs...)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })

	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &repository.MessagePage{Messages: all[start:end], Total: total, Page: page, Limit: limit}, nil
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.TurnJob
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: map[string]*model.TurnJob{}} }

func (m *memJobRepo) Save(_ context.Context, _ repository.Tx, job *model.TurnJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.TurnJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) ClaimNext(context.Context) (*model.TurnJob, error) {
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) Claim(_ context.Context, id string) (*model.TurnJob, error) {
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

func (m *memJobRepo) FindActiveByChat(_ context.Context, _ repository.Tx, chatID string) (*model.TurnJob, error) {
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

func (m *memJobRepo) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != model.TurnJobProcessing {
		return domain.ErrJobNotClaimable
	}
	return j.MarkCompleted(time.Now())
}

func (m *memJobRepo) MarkFailed(_ context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || !j.Status.Active() {
		return domain.ErrJobNotClaimable
	}
	return j.MarkFailed(time.Now(), reason)
}

func (m *memJobRepo) ReapStale(_ context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	locks int
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return "", domain.ErrActiveJobExists
	}
	token := ulid.Make().String()
	l.held[key] = token
	l.locks++
	return token, nil
}

func (l *memLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("not lock holder")
	}
	delete(l.held, key)
	return nil
}

type memJobCache struct {
	mu     sync.Mutex
	byChat map[string]*model.TurnJob
	hits   int
}

func newMemJobCache() *memJobCache { return &memJobCache{byChat: map[string]*model.TurnJob{}} }

func (c *memJobCache) StoreActive(_ context.Context, job *model.TurnJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *job
	c.byChat[job.ChatID] = &cp
	return nil
}

func (c *memJobCache) GetActive(_ context.Context, chatID string) (*model.TurnJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.byChat[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !job.Status.Active() {
		return nil, nil
	}
	c.hits++
	cp := *job
	return &cp, nil
}

func (c *memJobCache) Invalidate(_ context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byChat, chatID)
	return nil
}

type staticAI struct{ models []string }

func (s *staticAI) StreamTurn(context.Context, adapter.TurnRequest, adapter.ToolInvoker, adapter.EmitFunc) (*adapter.TurnResult, error) {
	return &adapter.TurnResult{}, nil
}
func (s *staticAI) ListModels(context.Context) ([]string, error) { return s.models, nil }
func (s *staticAI) CountTokens(context.Context, string, []adapter.Turn) (int, error) {
	return 0, nil
}
