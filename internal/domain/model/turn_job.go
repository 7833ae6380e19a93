package model

import (
	"time"

	"helpdesk-assistant/internal/domain"
)

type TurnJobStatus string

const (
	TurnJobPending    TurnJobStatus = "pending"
	TurnJobProcessing TurnJobStatus = "processing"
	TurnJobCompleted  TurnJobStatus = "completed"
	TurnJobFailed     TurnJobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TurnJobStatus) Terminal() bool {
	return s == TurnJobCompleted || s == TurnJobFailed
}

// Active reports whether the job still blocks new submissions for its chat.
func (s TurnJobStatus) Active() bool {
	return s == TurnJobPending || s == TurnJobProcessing
}

// TurnJob is the unit of work for one chat turn's asynchronous lifecycle.
// Jobs are never deleted; new submissions supersede completed ones.
type TurnJob struct {
	ID          string
	ChatID      string
	CompanyID   string
	UserID      string
	Status      TurnJobStatus
	LastError   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func NewTurnJob(id, chatID, companyID, userID string) *TurnJob {
	return &TurnJob{
		ID:        id,
		ChatID:    chatID,
		CompanyID: companyID,
		UserID:    userID,
		Status:    TurnJobPending,
		CreatedAt: time.Now(),
	}
}

// MarkProcessing transitions pending -> processing. Any other source
// state is rejected so claims stay monotonic.
func (j *TurnJob) MarkProcessing(now time.Time) error {
	if j.Status != TurnJobPending {
		return domain.ErrJobNotClaimable
	}
	j.Status = TurnJobProcessing
	j.StartedAt = &now
	return nil
}

// MarkCompleted transitions processing -> completed.
func (j *TurnJob) MarkCompleted(now time.Time) error {
	if j.Status != TurnJobProcessing {
		return domain.ErrJobNotClaimable
	}
	j.Status = TurnJobCompleted
	j.CompletedAt = &now
	return nil
}

// MarkFailed records a terminal failure. Allowed from pending as well,
// so the reaper and submission validation can fail unstarted jobs.
func (j *TurnJob) MarkFailed(now time.Time, reason string) error {
	if j.Status.Terminal() {
		return domain.ErrJobNotClaimable
	}
	j.Status = TurnJobFailed
	j.LastError = reason
	j.CompletedAt = &now
	return nil
}
