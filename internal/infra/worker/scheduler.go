// File: internal/infra/worker/scheduler.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/ports/repository"
	"helpdesk-assistant/internal/infra/metrics"
)

// BatchSummary reports one drain pass over the pending queue.
type BatchSummary struct {
	Reaped    int      `json:"reaped"`
	Processed int      `json:"processed"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Scheduler periodically reaps stale jobs and drains the pending queue
// through the processor. A manual trigger runs the same pass on demand.
type Scheduler struct {
	jobsRepo  repository.TurnJobRepository
	processor *TurnProcessor
	pool      *Pool

	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	log        *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(
	jobsRepo repository.TurnJobRepository,
	processor *TurnProcessor,
	pool *Pool,
	interval, staleAfter time.Duration,
	batchSize int,
	log *zerolog.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Scheduler{
		jobsRepo:   jobsRepo,
		processor:  processor,
		pool:       pool,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Start begins the background loop; calling Start twice has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("turn scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("turn scheduler stopping")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick claims up to batchSize jobs and hands each to the pool. Unlike
// RunBatch it does not wait for the jobs to finish.
func (s *Scheduler) tick() {
	runCtx, cancel := context.WithTimeout(s.ctx, s.staleAfter)
	defer cancel()

	s.reap(runCtx)

	for i := 0; i < s.batchSize; i++ {
		job, err := s.jobsRepo.ClaimNext(runCtx)
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("claim failed")
			return
		}
		claimed := job
		if err := s.pool.Submit(func(ctx context.Context) error {
			return s.processor.Process(ctx, claimed, nil)
		}); err != nil {
			// Queue saturated; fail the claim back so the job is retried
			// by the reaper rather than sitting claimed forever.
			s.log.Warn().Err(err).Str("job_id", claimed.ID).Msg("pool submit failed")
			_ = s.jobsRepo.MarkFailed(runCtx, claimed.ID, "worker queue full")
			return
		}
	}
}

// RunBatch synchronously reaps stale jobs and processes up to batchSize
// pending jobs, returning a summary of the pass.
func (s *Scheduler) RunBatch(ctx context.Context) BatchSummary {
	sum := BatchSummary{}
	sum.Reaped = s.reap(ctx)

	for i := 0; i < s.batchSize; i++ {
		job, err := s.jobsRepo.ClaimNext(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("claim: %v", err))
			break
		}

		sum.Processed++
		if err := s.processor.Process(ctx, job, nil); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("job %s: %v", job.ID, err))
			continue
		}
		sum.Completed++
	}
	return sum
}

func (s *Scheduler) reap(ctx context.Context) int {
	n, err := s.jobsRepo.ReapStale(ctx, time.Now().Add(-s.staleAfter))
	if err != nil {
		s.log.Error().Err(err).Msg("stale reap failed")
		return 0
	}
	if n > 0 {
		metrics.AddReapedJobs(n)
		s.log.Warn().Int("count", n).Msg("reaped stale jobs")
	}
	return n
}

// Stop cancels the loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
}
