package redis

import (
	"context"
	"encoding/json"
	"time"

	"helpdesk-assistant/internal/domain/model"
)

// JobCache keeps the most recent active job per chat so the submission
// path and polling clients can skip a store round trip. Best-effort
// only: entries expire and are invalidated on terminal transitions.
type JobCache struct {
	client *redClient
	ttl    time.Duration
}

func NewJobCache(client *redClient, ttl time.Duration) *JobCache {
	return &JobCache{
		client: client,
		ttl:    ttl,
	}
}

func key(chatID string) string { return "active_job:" + chatID }

func (c *JobCache) StoreActive(ctx context.Context, job *model.TurnJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(job.ChatID), data, c.ttl)
}

func (c *JobCache) GetActive(ctx context.Context, chatID string) (*model.TurnJob, error) {
	data, err := c.client.Get(ctx, key(chatID))
	if err != nil {
		return nil, err
	}

	var job model.TurnJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	if !job.Status.Active() {
		return nil, nil
	}
	return &job, nil
}

func (c *JobCache) Invalidate(ctx context.Context, chatID string) error {
	return c.client.Del(ctx, key(chatID))
}
