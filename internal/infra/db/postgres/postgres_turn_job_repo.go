package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/repository"
)

var _ repository.TurnJobRepository = (*turnJobRepo)(nil)

type turnJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewTurnJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *turnJobRepo {
	return &turnJobRepo{
		pool: pool,
		tm:   tm,
	}
}

const jobColumns = `id, chat_id, company_id, user_id, status, last_error, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*model.TurnJob, error) {
	var job model.TurnJob
	var statusStr string
	err := row.Scan(
		&job.ID, &job.ChatID, &job.CompanyID, &job.UserID,
		&statusStr, &job.LastError, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, translateNoRows(err)
	}
	job.Status = model.TurnJobStatus(statusStr)
	return &job, nil
}

func (r *turnJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.TurnJob) error {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}

	const q = `
INSERT INTO turn_jobs (id, chat_id, company_id, user_id, status, last_error, created_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  last_error = EXCLUDED.last_error,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.ChatID, job.CompanyID, job.UserID, string(job.Status),
		job.LastError, job.CreatedAt, job.StartedAt, job.CompletedAt)
	return err
}

func (r *turnJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TurnJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM turn_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// ClaimNext claims the oldest pending job: the row is locked with
// FOR UPDATE SKIP LOCKED and flipped to 'processing' inside one
// transaction, so no two claimants can observe the same pending job.
func (r *turnJobRepo) ClaimNext(ctx context.Context) (*model.TurnJob, error) {
	var job *model.TurnJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM turn_jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		claimed, err := scanJob(row)
		if err != nil {
			return err
		}

		if err := claimed.MarkProcessing(time.Now()); err != nil {
			return err
		}
		if err := r.Save(ctx, tx, claimed); err != nil {
			return err
		}

		job = claimed
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// Claim flips one specific pending job to 'processing'. The status
// guard in the WHERE clause is the compare-and-set; a second claimant
// sees zero rows affected.
func (r *turnJobRepo) Claim(ctx context.Context, id string) (*model.TurnJob, error) {
	const q = `
UPDATE turn_jobs
SET status = 'processing', started_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING ` + jobColumns + `;`
	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrJobNotClaimable
	}
	return job, err
}

func (r *turnJobRepo) FindActiveByChat(ctx context.Context, tx repository.Tx, chatID string) (*model.TurnJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM turn_jobs
WHERE chat_id = $1 AND status IN ('pending', 'processing')
ORDER BY created_at DESC
LIMIT 1;`

	row, err := pickRow(ctx, r.pool, tx, q, chatID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *turnJobRepo) MarkCompleted(ctx context.Context, id string) error {
	const q = `
UPDATE turn_jobs
SET status = 'completed', completed_at = NOW()
WHERE id = $1 AND status = 'processing';`
	tag, err := execSQL(ctx, r.pool, nil, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotClaimable
	}
	return nil
}

func (r *turnJobRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	const q = `
UPDATE turn_jobs
SET status = 'failed', last_error = $2, completed_at = NOW()
WHERE id = $1 AND status IN ('pending', 'processing');`
	tag, err := execSQL(ctx, r.pool, nil, q, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotClaimable
	}
	return nil
}

// ReapStale unblocks chats whose worker died mid-turn: any job still
// 'processing' since before the cutoff is forced to 'failed'.
func (r *turnJobRepo) ReapStale(ctx context.Context, olderThan time.Time) (int, error) {
	const q = `
UPDATE turn_jobs
SET status = 'failed', last_error = $2, completed_at = NOW()
WHERE status = 'processing' AND started_at < $1;`
	tag, err := execSQL(ctx, r.pool, nil, q, olderThan, domain.ErrStaleTimeout.Error())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
