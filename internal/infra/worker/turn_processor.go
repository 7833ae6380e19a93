// File: internal/infra/worker/turn_processor.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"helpdesk-assistant/internal/convert"
	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/domain/ports/repository"
	"helpdesk-assistant/internal/infra/logging"
	"helpdesk-assistant/internal/infra/metrics"
	"helpdesk-assistant/internal/tools"
)

// JobCache invalidates the cached active-job entry once a job reaches a
// terminal status.
type JobCache interface {
	Invalidate(ctx context.Context, chatID string) error
}

type ProcessorConfig struct {
	DefaultModel       string
	HistoryTokenBudget int
	// EnabledTools nil means every registered tool is offered.
	EnabledTools []string
}

// TurnProcessor drives one claimed job through the full exchange:
// history assembly, the streaming call with tool execution, persistence
// and the terminal status flip.
type TurnProcessor struct {
	jobsRepo   repository.TurnJobRepository
	chatRepo   repository.ChatRepository
	msgRepo    repository.MessageRepository
	settings   adapter.InstructionProvider
	aiAdapter  adapter.LLMStreamAdapter
	dispatcher *tools.Dispatcher
	counter    convert.TokenCounter
	tm         repository.TransactionManager
	jobCache   JobCache
	cfg        ProcessorConfig
	log        *zerolog.Logger
}

func NewTurnProcessor(
	jobsRepo repository.TurnJobRepository,
	chatRepo repository.ChatRepository,
	msgRepo repository.MessageRepository,
	settings adapter.InstructionProvider,
	aiAdapter adapter.LLMStreamAdapter,
	dispatcher *tools.Dispatcher,
	counter convert.TokenCounter,
	tm repository.TransactionManager,
	jobCache JobCache,
	cfg ProcessorConfig,
	log *zerolog.Logger,
) *TurnProcessor {
	return &TurnProcessor{
		jobsRepo:   jobsRepo,
		chatRepo:   chatRepo,
		msgRepo:    msgRepo,
		settings:   settings,
		aiAdapter:  aiAdapter,
		dispatcher: dispatcher,
		counter:    counter,
		tm:         tm,
		jobCache:   jobCache,
		cfg:        cfg,
		log:        log,
	}
}

func noopEmit(model.StreamEvent) error { return nil }

// RunJob claims one specific job and processes it with the caller's
// emitter. Used by the inline streaming path; the background scheduler
// cannot grab a job claimed here.
func (p *TurnProcessor) RunJob(ctx context.Context, jobID string, emit adapter.EmitFunc) error {
	job, err := p.jobsRepo.Claim(ctx, jobID)
	if err != nil {
		return err
	}
	return p.Process(ctx, job, emit)
}

// Process runs one already-claimed job to a terminal status. The job
// always ends completed or failed; errors are reported for logging but
// never leave the job active.
func (p *TurnProcessor) Process(ctx context.Context, job *model.TurnJob, emit adapter.EmitFunc) error {
	if emit == nil {
		emit = noopEmit
	}
	ctx = logging.WithJobID(logging.WithChatID(logging.WithCompanyID(ctx, job.CompanyID), job.ChatID), job.ID)
	log := logging.With(ctx, p.log)
	start := time.Now()

	_ = emit(model.StreamEvent{
		Event: model.EventTurnStarted,
		Data:  map[string]string{"job_id": job.ID, "chat_id": job.ChatID},
	})
	metrics.IncStreamEvent(model.EventTurnStarted)

	msg, err := p.exchange(ctx, job, emit)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, domain.ErrClientDisconnect) {
			reason = domain.ErrClientDisconnect.Error()
		}
		p.fail(ctx, job, reason, emit)
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("turn failed")
		return err
	}

	// Terminal writes run detached: the caller's context may already be
	// cancelled (inline stream whose client went away) and the status
	// flip must still land.
	term := context.WithoutCancel(ctx)
	if err := p.jobsRepo.MarkCompleted(term, job.ID); err != nil {
		// Reaped mid-flight: the reply is persisted but the job already
		// moved to failed. Nothing to undo.
		log.Warn().Err(err).Msg("job not completable")
		return err
	}
	p.invalidate(term, job.ChatID)

	metrics.IncTurnJob(string(model.TurnJobCompleted))
	metrics.ObserveTurnJobDuration(string(model.TurnJobCompleted), time.Since(start).Seconds())
	metrics.IncStreamEvent(model.EventTurnCompleted)
	_ = emit(model.StreamEvent{
		Event: model.EventTurnCompleted,
		Data:  map[string]string{"job_id": job.ID, "message_id": msg.ID},
	})
	log.Info().Dur("duration", time.Since(start)).Int("tool_calls", len(msg.ToolCalls)).Msg("turn completed")
	return nil
}

// exchange performs the streaming call and persists the resulting
// assistant message. A nil error means the message is durably stored.
func (p *TurnProcessor) exchange(ctx context.Context, job *model.TurnJob, emit adapter.EmitFunc) (*model.Message, error) {
	chat, err := p.chatRepo.FindByID(ctx, nil, job.ChatID)
	if err != nil {
		return nil, fmt.Errorf("chat not found: %w", err)
	}

	instructions, err := p.settings.SystemInstruction(ctx, chat.CompanyID, chat.EmployeeID, personalityLevel(chat))
	if err != nil {
		return nil, fmt.Errorf("system instruction: %w", err)
	}

	msgs, err := p.msgRepo.ListByChat(ctx, nil, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(msgs) == 0 {
		return nil, errors.New("turn has no messages")
	}
	history := convert.ToConversationHistory(msgs, p.cfg.HistoryTokenBudget, p.counter)

	req := adapter.TurnRequest{
		Model:        modelFor(chat, p.cfg.DefaultModel),
		Instructions: instructions,
		History:      history,
	}
	if toolsEnabled(chat) {
		req.Tools = p.dispatcher.Registry().Definitions(p.cfg.EnabledTools)
	}

	// Consumer-gone detection: a failed emit cancels the upstream
	// exchange and marks this turn "client_disconnected".
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gone := false
	guardedEmit := func(ev model.StreamEvent) error {
		if err := emit(ev); err != nil {
			gone = true
			cancel()
			return err
		}
		return nil
	}

	tenant := &tools.TenantContext{UserID: job.UserID, CompanyID: job.CompanyID}
	res, err := p.aiAdapter.StreamTurn(streamCtx, req, p.dispatcher.Invoker(tenant), guardedEmit)
	if err != nil {
		if gone {
			return nil, domain.ErrClientDisconnect
		}
		return nil, fmt.Errorf("stream exchange: %w", err)
	}

	msg := &model.Message{
		ChatID:    chat.ID,
		Role:      model.RoleAssistant,
		Content:   res.Content,
		ToolCalls: res.ToolCalls,
		CreatedAt: time.Now(),
	}
	// The exchange finished, so the reply is complete; a disconnect
	// racing the write must not discard it.
	if err := p.store(context.WithoutCancel(ctx), msg); err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	return msg, nil
}

// store writes the reply atomically, with one retry for transient
// database hiccups.
func (p *TurnProcessor) store(ctx context.Context, msg *model.Message) error {
	save := func() error {
		return p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			return p.msgRepo.SaveMessage(ctx, tx, msg)
		})
	}
	err := save()
	if err == nil {
		return nil
	}
	p.log.Warn().Err(err).Str("chat_id", msg.ChatID).Msg("reply save failed, retrying once")
	msg.ID = ""
	return save()
}

func (p *TurnProcessor) fail(ctx context.Context, job *model.TurnJob, reason string, emit adapter.EmitFunc) {
	// On client disconnect ctx is already cancelled; detach so the
	// failed status is written instead of waiting for the stale reaper.
	ctx = context.WithoutCancel(ctx)
	if err := p.jobsRepo.MarkFailed(ctx, job.ID, reason); err != nil {
		p.log.Warn().Err(err).Str("job_id", job.ID).Msg("job not failable")
	}
	p.invalidate(ctx, job.ChatID)
	metrics.IncTurnJob(string(model.TurnJobFailed))
	metrics.IncStreamEvent(model.EventTurnFailed)
	_ = emit(model.StreamEvent{
		Event: model.EventTurnFailed,
		Data:  map[string]string{"job_id": job.ID, "error": reason},
	})
}

func (p *TurnProcessor) invalidate(ctx context.Context, chatID string) {
	if p.jobCache == nil {
		return
	}
	if err := p.jobCache.Invalidate(ctx, chatID); err != nil {
		p.log.Warn().Err(err).Str("chat_id", chatID).Msg("job cache invalidate failed")
	}
}

func personalityLevel(chat *model.Chat) int {
	if v, ok := chat.Metadata["personality_level"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 1
}

func modelFor(chat *model.Chat, def string) string {
	if m := chat.Metadata["model"]; m != "" {
		return m
	}
	return def
}

func toolsEnabled(chat *model.Chat) bool {
	return chat.Metadata["tools"] != "disabled"
}
