// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/domain/ports/repository"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

const (
	submitLockTTL = 10 * time.Second
	maxTitleLen   = 48

	// Message listing bounds.
	MaxPageLimit     = 100
	DefaultPageLimit = 20
)

// SubmitLocker serializes turn submission per chat. Satisfied by the
// redis locker; nil disables locking in dev wiring.
type SubmitLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// ActiveJobCache is the best-effort cache in front of the active-job
// query. Implementations may lose entries at any time.
type ActiveJobCache interface {
	StoreActive(ctx context.Context, job *model.TurnJob) error
	GetActive(ctx context.Context, chatID string) (*model.TurnJob, error)
	Invalidate(ctx context.Context, chatID string) error
}

type ChatUseCase interface {
	CreateChat(ctx context.Context, companyID, employeeID, title string) (*model.Chat, error)
	GetChat(ctx context.Context, companyID, chatID string) (*model.Chat, error)
	ListChats(ctx context.Context, companyID, employeeID string) ([]*model.Chat, error)
	DeleteChat(ctx context.Context, companyID, chatID string) error

	// SubmitTurn appends the user message and enqueues a turn job for the
	// chat. When the chat already has an active job, no new job or message
	// is created and the existing job is returned with coalesced=true.
	SubmitTurn(ctx context.Context, companyID, userID, chatID, content string) (job *model.TurnJob, coalesced bool, err error)

	// UpdateChat patches title and/or metadata. Empty title and nil
	// metadata leave the respective field untouched.
	UpdateChat(ctx context.Context, companyID, chatID, title string, metadata map[string]string) (*model.Chat, error)

	// SeedTurn creates a chat pre-loaded with the given messages and a
	// pending job in one step, for callers that stream the turn inline.
	SeedTurn(ctx context.Context, companyID, employeeID, userID string, msgs []*model.Message, metadata map[string]string) (*model.Chat, *model.TurnJob, error)

	// ActiveJob returns the chat's pending or processing job, or
	// domain.ErrNotFound.
	ActiveJob(ctx context.Context, companyID, chatID string) (*model.TurnJob, error)

	ChatMessages(ctx context.Context, companyID, chatID string) ([]*model.Message, error)
	ListMessages(ctx context.Context, companyID string, page, limit int) (*repository.MessagePage, error)
	ListModels(ctx context.Context) ([]string, error)
}

type chatUC struct {
	chats  repository.ChatRepository
	msgs   repository.MessageRepository
	jobs   repository.TurnJobRepository
	ai     adapter.LLMStreamAdapter
	locker SubmitLocker
	cache  ActiveJobCache
}

func NewChatUseCase(
	chats repository.ChatRepository,
	msgs repository.MessageRepository,
	jobs repository.TurnJobRepository,
	ai adapter.LLMStreamAdapter,
	locker SubmitLocker,
	cache ActiveJobCache,
) *chatUC {
	return &chatUC{chats: chats, msgs: msgs, jobs: jobs, ai: ai, locker: locker, cache: cache}
}

func (c *chatUC) CreateChat(ctx context.Context, companyID, employeeID, title string) (*model.Chat, error) {
	if companyID == "" || employeeID == "" {
		return nil, domain.ErrTenantRequired
	}
	chat := model.NewChat(uuid.NewString(), companyID, employeeID, strings.TrimSpace(title))
	if err := c.chats.Save(ctx, nil, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat enforces tenancy: a chat belonging to another company is
// indistinguishable from a missing one.
func (c *chatUC) GetChat(ctx context.Context, companyID, chatID string) (*model.Chat, error) {
	chat, err := c.chats.FindByID(ctx, nil, chatID)
	if err != nil {
		return nil, err
	}
	if chat.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	return chat, nil
}

func (c *chatUC) ListChats(ctx context.Context, companyID, employeeID string) ([]*model.Chat, error) {
	if companyID == "" {
		return nil, domain.ErrTenantRequired
	}
	return c.chats.FindByCompany(ctx, nil, companyID, employeeID)
}

func (c *chatUC) DeleteChat(ctx context.Context, companyID, chatID string) error {
	if _, err := c.GetChat(ctx, companyID, chatID); err != nil {
		return err
	}
	if c.cache != nil {
		_ = c.cache.Invalidate(ctx, chatID)
	}
	return c.chats.Delete(ctx, nil, chatID)
}

func (c *chatUC) UpdateChat(ctx context.Context, companyID, chatID, title string, metadata map[string]string) (*model.Chat, error) {
	chat, err := c.GetChat(ctx, companyID, chatID)
	if err != nil {
		return nil, err
	}
	if title != "" {
		chat.Title = strings.TrimSpace(title)
	}
	for k, v := range metadata {
		chat.Metadata[k] = v
	}
	chat.UpdatedAt = time.Now()
	if err := c.chats.Save(ctx, nil, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (c *chatUC) SeedTurn(ctx context.Context, companyID, employeeID, userID string, msgs []*model.Message, metadata map[string]string) (*model.Chat, *model.TurnJob, error) {
	if len(msgs) == 0 {
		return nil, nil, domain.ErrInvalidArgument
	}
	chat, err := c.CreateChat(ctx, companyID, employeeID, "")
	if err != nil {
		return nil, nil, err
	}
	for k, v := range metadata {
		chat.Metadata[k] = v
	}

	base := time.Now()
	for i, m := range msgs {
		m.ChatID = chat.ID
		if m.Role == "" {
			m.Role = model.RoleUser
		}
		// Preserve submission order under identical wall clocks.
		m.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		if err := c.msgs.SaveMessage(ctx, nil, m); err != nil {
			return nil, nil, err
		}
		if chat.Title == "" && m.Role == model.RoleUser {
			chat.Title = titleFrom(m.Content)
		}
	}
	chat.UpdatedAt = time.Now()
	if err := c.chats.Save(ctx, nil, chat); err != nil {
		return nil, nil, err
	}

	job := model.NewTurnJob("", chat.ID, companyID, userID)
	if err := c.jobs.Save(ctx, nil, job); err != nil {
		return nil, nil, err
	}
	if c.cache != nil {
		_ = c.cache.StoreActive(ctx, job)
	}
	return chat, job, nil
}

func (c *chatUC) SubmitTurn(ctx context.Context, companyID, userID, chatID, content string) (*model.TurnJob, bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false, domain.ErrInvalidArgument
	}
	chat, err := c.GetChat(ctx, companyID, chatID)
	if err != nil {
		return nil, false, err
	}

	// The lock narrows the check-then-insert window between concurrent
	// submitters; the claim CAS stays the authoritative guard.
	if c.locker != nil {
		token, err := c.locker.TryLock(ctx, "turn_submit:"+chatID, submitLockTTL)
		if err != nil {
			return nil, false, err
		}
		defer func() { _ = c.locker.Unlock(ctx, "turn_submit:"+chatID, token) }()
	}

	if existing, err := c.activeJob(ctx, chatID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	msg := &model.Message{
		ChatID:    chatID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := c.msgs.SaveMessage(ctx, nil, msg); err != nil {
		return nil, false, err
	}

	if chat.Title == "" {
		chat.Title = titleFrom(content)
	}
	chat.UpdatedAt = time.Now()
	_ = c.chats.Save(ctx, nil, chat)

	job := model.NewTurnJob("", chatID, companyID, userID)
	if err := c.jobs.Save(ctx, nil, job); err != nil {
		return nil, false, err
	}
	if c.cache != nil {
		_ = c.cache.StoreActive(ctx, job)
	}
	return job, false, nil
}

func (c *chatUC) ActiveJob(ctx context.Context, companyID, chatID string) (*model.TurnJob, error) {
	if _, err := c.GetChat(ctx, companyID, chatID); err != nil {
		return nil, err
	}
	return c.activeJob(ctx, chatID)
}

func (c *chatUC) activeJob(ctx context.Context, chatID string) (*model.TurnJob, error) {
	if c.cache != nil {
		if job, err := c.cache.GetActive(ctx, chatID); err == nil && job != nil {
			return job, nil
		}
	}
	job, err := c.jobs.FindActiveByChat(ctx, nil, chatID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		_ = c.cache.StoreActive(ctx, job)
	}
	return job, nil
}

func (c *chatUC) ChatMessages(ctx context.Context, companyID, chatID string) ([]*model.Message, error) {
	if _, err := c.GetChat(ctx, companyID, chatID); err != nil {
		return nil, err
	}
	return c.msgs.ListByChat(ctx, nil, chatID)
}

func (c *chatUC) ListMessages(ctx context.Context, companyID string, page, limit int) (*repository.MessagePage, error) {
	if companyID == "" {
		return nil, domain.ErrTenantRequired
	}
	if page < 1 || limit < 1 || limit > MaxPageLimit {
		return nil, domain.ErrInvalidArgument
	}
	return c.msgs.ListByCompany(ctx, companyID, page, limit)
}

func (c *chatUC) ListModels(ctx context.Context) ([]string, error) {
	return c.ai.ListModels(ctx)
}

// titleFrom derives a chat title from the first user message. Truncation
// counts runes so a multi-byte character is never split mid-sequence.
func titleFrom(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		head := string(runes[:maxTitleLen])
		cut := strings.LastIndex(head, " ")
		if cut >= 0 && len([]rune(head[:cut])) >= maxTitleLen/2 {
			head = head[:cut]
		}
		title = strings.TrimSpace(head) + "…"
	}
	return title
}
