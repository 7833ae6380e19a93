package repository

import (
	"context"
	"time"

	"helpdesk-assistant/internal/domain/model"
)

type TurnJobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.TurnJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.TurnJob, error)

	// ClaimNext atomically fetches the oldest pending job and transitions
	// it to 'processing' with a StartedAt timestamp. Safe under concurrent
	// claimants: no two callers may observe the same pending job as
	// claimable. Returns domain.ErrNotFound when nothing is pending.
	ClaimNext(ctx context.Context) (*model.TurnJob, error)

	// Claim transitions one specific job from 'pending' to 'processing'.
	// Used when the submitter streams its own turn; a job claimed here is
	// invisible to ClaimNext. Returns domain.ErrJobNotClaimable when the
	// job has already been claimed or finished.
	Claim(ctx context.Context, id string) (*model.TurnJob, error)

	// FindActiveByChat returns the most recent job on the chat with
	// status in {pending, processing}, or domain.ErrNotFound.
	FindActiveByChat(ctx context.Context, tx Tx, chatID string) (*model.TurnJob, error)

	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error

	// ReapStale forces jobs stuck in 'processing' since before the cutoff
	// to 'failed' with error "stale_timeout". Returns the reaped count.
	ReapStale(ctx context.Context, olderThan time.Time) (int, error)
}
