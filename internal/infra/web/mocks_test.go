package web

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/domain/ports/repository"
	"helpdesk-assistant/internal/infra/worker"
	"helpdesk-assistant/internal/usecase"
)

// fakeChatUC is an in-memory ChatUseCase with the same validation
// behavior as the real one.
type fakeChatUC struct {
	mu     sync.Mutex
	chats  map[string]*model.Chat
	msgs   map[string][]*model.Message
	active map[string]*model.TurnJob
}

var _ usecase.ChatUseCase = (*fakeChatUC)(nil)

func newFakeChatUC() *fakeChatUC {
	return &fakeChatUC{
		chats:  map[string]*model.Chat{},
		msgs:   map[string][]*model.Message{},
		active: map[string]*model.TurnJob{},
	}
}

func (f *fakeChatUC) CreateChat(_ context.Context, companyID, employeeID, title string) (*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if companyID == "" || employeeID == "" {
		return nil, domain.ErrTenantRequired
	}
	chat := model.NewChat(ulid.Make().String(), companyID, employeeID, title)
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeChatUC) GetChat(_ context.Context, companyID, chatID string) (*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok || chat.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	return chat, nil
}

func (f *fakeChatUC) ListChats(_ context.Context, companyID, employeeID string) ([]*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Chat
	for _, c := range f.chats {
		if c.CompanyID != companyID {
			continue
		}
		if employeeID != "" && c.EmployeeID != employeeID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeChatUC) UpdateChat(ctx context.Context, companyID, chatID, title string, metadata map[string]string) (*model.Chat, error) {
	chat, err := f.GetChat(ctx, companyID, chatID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if title != "" {
		chat.Title = title
	}
	for k, v := range metadata {
		chat.Metadata[k] = v
	}
	return chat, nil
}

func (f *fakeChatUC) DeleteChat(ctx context.Context, companyID, chatID string) error {
	if _, err := f.GetChat(ctx, companyID, chatID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chats, chatID)
	return nil
}

func (f *fakeChatUC) SubmitTurn(ctx context.Context, companyID, userID, chatID, content string) (*model.TurnJob, bool, error) {
	if content == "" {
		return nil, false, domain.ErrInvalidArgument
	}
	if _, err := f.GetChat(ctx, companyID, chatID); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.active[chatID]; ok && job.Status.Active() {
		return job, true, nil
	}
	f.msgs[chatID] = append(f.msgs[chatID], &model.Message{
		ID: ulid.Make().String(), ChatID: chatID, Role: model.RoleUser, Content: content, CreatedAt: time.Now(),
	})
	job := model.NewTurnJob(ulid.Make().String(), chatID, companyID, userID)
	f.active[chatID] = job
	return job, false, nil
}

func (f *fakeChatUC) SeedTurn(ctx context.Context, companyID, employeeID, userID string, msgs []*model.Message, metadata map[string]string) (*model.Chat, *model.TurnJob, error) {
	if len(msgs) == 0 {
		return nil, nil, domain.ErrInvalidArgument
	}
	chat, err := f.CreateChat(ctx, companyID, employeeID, "")
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range metadata {
		chat.Metadata[k] = v
	}
	for _, m := range msgs {
		m.ChatID = chat.ID
		f.msgs[chat.ID] = append(f.msgs[chat.ID], m)
	}
	job := model.NewTurnJob(ulid.Make().String(), chat.ID, companyID, userID)
	f.active[chat.ID] = job
	return chat, job, nil
}

func (f *fakeChatUC) ActiveJob(ctx context.Context, companyID, chatID string) (*model.TurnJob, error) {
	if _, err := f.GetChat(ctx, companyID, chatID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.active[chatID]; ok && job.Status.Active() {
		return job, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeChatUC) ChatMessages(ctx context.Context, companyID, chatID string) ([]*model.Message, error) {
	if _, err := f.GetChat(ctx, companyID, chatID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[chatID], nil
}

func (f *fakeChatUC) ListMessages(_ context.Context, companyID string, page, limit int) (*repository.MessagePage, error) {
	if page < 1 || limit < 1 || limit > usecase.MaxPageLimit {
		return nil, domain.ErrInvalidArgument
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Message
	for chatID, msgs := range f.msgs {
		if chat := f.chats[chatID]; chat != nil && chat.CompanyID == companyID {
			all = append(all, msgs...)
		}
	}
	return &repository.MessagePage{Messages: all, Total: len(all), Page: page, Limit: limit}, nil
}

func (f *fakeChatUC) ListModels(context.Context) ([]string, error) {
	return []string{"gpt-4o-mini"}, nil
}

type fakeBatchRunner struct{ summary worker.BatchSummary }

func (f *fakeBatchRunner) RunBatch(context.Context) worker.BatchSummary { return f.summary }

// fakeTurnRunner emits a scripted event sequence.
type fakeTurnRunner struct {
	events      []model.StreamEvent
	gotJob      string
	gotDeadline bool
}

func (f *fakeTurnRunner) RunJob(ctx context.Context, jobID string, emit adapter.EmitFunc) error {
	f.gotJob = jobID
	_, f.gotDeadline = ctx.Deadline()
	for _, ev := range f.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}
