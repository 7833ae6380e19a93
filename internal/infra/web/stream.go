package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/infra/logging"
)

type streamTurnRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ToolsState       string `json:"toolsState,omitempty"`
	UID              string `json:"uid,omitempty"`
	EmployeeID       string `json:"employeeId,omitempty"`
	PersonalityLevel int    `json:"personalityLevel,omitempty"`
}

// handleChatStream runs a turn inline and relays its events live as
// server-sent frames. The request context doubles as the disconnect
// signal: when the client goes away the write fails, the emitter
// reports it and the processor aborts the upstream exchange.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.StreamWriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.StreamWriteTimeout)
		defer cancel()
	}
	tenant := tenantFrom(ctx)

	var req streamTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New("streaming unsupported"))
		return
	}

	userID := req.UID
	if userID == "" {
		userID = tenant.UserID
	}
	employeeID := req.EmployeeID
	if employeeID == "" {
		employeeID = tenant.UserID
	}

	msgs := make([]*model.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, &model.Message{Role: model.MessageRole(m.Role), Content: m.Content})
	}
	metadata := map[string]string{
		"personality_level": strconv.Itoa(req.PersonalityLevel),
	}
	if req.ToolsState == "disabled" {
		metadata["tools"] = "disabled"
	}

	_, job, err := s.chatUC.SeedTurn(ctx, tenant.CompanyID, employeeID, userID, msgs, metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev model.StreamEvent) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		frame, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// Headers are out; any failure from here on is reported in-band as
	// a turn.failed frame by the processor.
	if err := s.turns.RunJob(ctx, job.ID, emit); err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Str("job_id", job.ID).Msg("streamed turn ended with error")
	}
}
