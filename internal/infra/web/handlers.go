package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"helpdesk-assistant/internal/convert"
	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/usecase"
)

// ===== wire DTOs =====

type jobDTO struct {
	ID          string     `json:"id"`
	ChatID      string     `json:"chatId"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func toJobDTO(j *model.TurnJob) *jobDTO {
	if j == nil {
		return nil
	}
	return &jobDTO{
		ID:          j.ID,
		ChatID:      j.ChatID,
		Status:      string(j.Status),
		Error:       j.LastError,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

type chatDTO struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func toChatDTO(c *model.Chat) *chatDTO {
	return &chatDTO{
		ID:        c.ID,
		Title:     c.Title,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type toolCallDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
	Status    string `json:"status"`
	Code      string `json:"code,omitempty"`
}

type messageDTO struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chatId"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []toolCallDTO `json:"toolCalls,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func toMessageDTO(m *model.Message) messageDTO {
	dto := messageDTO{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	for _, tc := range m.ToolCalls {
		dto.ToolCalls = append(dto.ToolCalls, toolCallDTO{
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Name,
			Arguments: tc.Arguments,
			Output:    tc.Output,
			Status:    string(tc.Status),
			Code:      tc.Code,
		})
	}
	return dto
}

// ===== handlers =====

type submitTurnRequest struct {
	ChatID     string            `json:"chatId,omitempty"`
	EmployeeID string            `json:"employeeId"`
	UserID     string            `json:"userId,omitempty"`
	Title      string            `json:"title,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// handleSubmitTurn creates the chat when no chatId is given, appends the
// user message and enqueues the turn job. Duplicate submissions while a
// job is active coalesce onto the existing job.
func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	var req submitTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = tenant.UserID
	}

	chatID := req.ChatID
	if chatID == "" {
		employeeID := req.EmployeeID
		if employeeID == "" {
			employeeID = tenant.UserID
		}
		chat, err := s.chatUC.CreateChat(r.Context(), tenant.CompanyID, employeeID, req.Title)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(req.Metadata) > 0 {
			if chat, err = s.chatUC.UpdateChat(r.Context(), tenant.CompanyID, chat.ID, "", req.Metadata); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		chatID = chat.ID
	}

	var (
		job       *model.TurnJob
		coalesced bool
	)
	if req.Message != "" {
		var err error
		job, coalesced, err = s.chatUC.SubmitTurn(r.Context(), tenant.CompanyID, userID, chatID, req.Message)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	} else if req.ChatID != "" {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}

	chat, err := s.chatUC.GetChat(r.Context(), tenant.CompanyID, chatID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if coalesced {
		status = http.StatusOK
	}
	writeJSON(w, status, struct {
		ChatID    string   `json:"chatId"`
		Chat      *chatDTO `json:"chat"`
		Job       *jobDTO  `json:"job,omitempty"`
		Coalesced bool     `json:"coalesced,omitempty"`
	}{ChatID: chatID, Chat: toChatDTO(chat), Job: toJobDTO(job), Coalesced: coalesced})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	chats, err := s.chatUC.ListChats(r.Context(), tenant.CompanyID, r.URL.Query().Get("employeeId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]*chatDTO, 0, len(chats))
	for _, c := range chats {
		out = append(out, toChatDTO(c))
	}
	writeJSON(w, http.StatusOK, struct {
		Chats []*chatDTO `json:"chats"`
	}{Chats: out})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	chat, err := s.chatUC.GetChat(r.Context(), tenant.CompanyID, chi.URLParam(r, "chatID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatDTO(chat))
}

type updateChatRequest struct {
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	var req updateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	chat, err := s.chatUC.UpdateChat(r.Context(), tenant.CompanyID, chi.URLParam(r, "chatID"), req.Title, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatDTO(chat))
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	if err := s.chatUC.DeleteChat(r.Context(), tenant.CompanyID, chi.URLParam(r, "chatID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChatMessages replays the chat as ordered stream items: for each
// message its tool calls first, then the message itself.
func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	msgs, err := s.chatUC.ChatMessages(r.Context(), tenant.CompanyID, chi.URLParam(r, "chatID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]model.StreamItem, 0, len(msgs)*2)
	for _, m := range msgs {
		items = append(items, convert.ToStreamItems(m)...)
	}
	writeJSON(w, http.StatusOK, struct {
		Items []model.StreamItem `json:"items"`
	}{Items: items})
}

func (s *Server) handleActiveJob(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	job, err := s.chatUC.ActiveJob(r.Context(), tenant.CompanyID, chi.URLParam(r, "chatID"))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, r, err)
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		// distinguish a missing chat from an idle one
		if _, chatErr := s.chatUC.GetChat(r.Context(), tenant.CompanyID, chi.URLParam(r, "chatID")); chatErr != nil {
			s.writeError(w, r, chatErr)
			return
		}
	}
	writeJSON(w, http.StatusOK, struct {
		ActiveJob *jobDTO `json:"activeJob"`
	}{ActiveJob: toJobDTO(job)})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.chatUC.ListModels(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Models []string `json:"models"`
	}{Models: models})
}

func (s *Server) handleWorkerRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.RunBatch(r.Context()))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", usecase.DefaultPageLimit)

	result, err := s.chatUC.ListMessages(r.Context(), tenant.CompanyID, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msgs := make([]messageDTO, 0, len(result.Messages))
	for _, m := range result.Messages {
		msgs = append(msgs, toMessageDTO(m))
	}
	writeJSON(w, http.StatusOK, struct {
		Messages   []messageDTO `json:"messages"`
		Pagination struct {
			Page    int  `json:"page"`
			Limit   int  `json:"limit"`
			Total   int  `json:"total"`
			HasMore bool `json:"hasMore"`
		} `json:"pagination"`
	}{
		Messages: msgs,
		Pagination: struct {
			Page    int  `json:"page"`
			Limit   int  `json:"limit"`
			Total   int  `json:"total"`
			HasMore bool `json:"hasMore"`
		}{Page: result.Page, Limit: result.Limit, Total: result.Total, HasMore: result.HasMore()},
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
