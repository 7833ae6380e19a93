package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/infra/worker"
	"helpdesk-assistant/internal/usecase"
)

const requestTimeout = 30 * time.Second

// BatchRunner triggers one synchronous scheduling pass.
type BatchRunner interface {
	RunBatch(ctx context.Context) worker.BatchSummary
}

// TurnRunner claims one job and streams it with the caller's emitter.
type TurnRunner interface {
	RunJob(ctx context.Context, jobID string, emit adapter.EmitFunc) error
}

type Server struct {
	chatUC usecase.ChatUseCase
	runner BatchRunner
	turns  TurnRunner
	auth   *AuthManager
	log    *zerolog.Logger

	// StreamWriteTimeout bounds one SSE relay end to end; 0 disables.
	StreamWriteTimeout time.Duration
}

func NewServer(
	chatUC usecase.ChatUseCase,
	runner BatchRunner,
	turns TurnRunner,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		chatUC: chatUC,
		runner: runner,
		turns:  turns,
		auth:   auth,
		log:    logger,
	}
}

// Router builds the full route table. The stream route sits outside the
// request timeout; everything else gets the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(s.log), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(Timeout(requestTimeout), s.authenticate)
			g.Post("/chats", s.handleSubmitTurn)
			g.Get("/chats", s.handleListChats)
			g.Get("/chats/{chatID}", s.handleGetChat)
			g.Patch("/chats/{chatID}", s.handleUpdateChat)
			g.Delete("/chats/{chatID}", s.handleDeleteChat)
			g.Get("/chats/{chatID}/messages", s.handleChatMessages)
			g.Get("/chats/{chatID}/active-job", s.handleActiveJob)
			g.Post("/worker/run", s.handleWorkerRun)
			g.Get("/messages", s.handleListMessages)
			g.Get("/models", s.handleListModels)
		})
		api.Group(func(g chi.Router) {
			g.Use(s.authenticate)
			g.Post("/chat/stream", s.handleChatStream)
		})
	})
	return r
}
