// File: internal/infra/db/postgres/postgres_chat_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/repository"
)

var _ repository.ChatRepository = (*ChatRepo)(nil)

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) Save(ctx context.Context, tx repository.Tx, chat *model.Chat) error {
	meta, err := json.Marshal(chat.Metadata)
	if err != nil {
		return fmt.Errorf("marshal chat metadata: %w", err)
	}
	const q = `
INSERT INTO chats (id, company_id, employee_id, title, thread_id, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,NOW()),COALESCE($8,NOW()))
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  thread_id = EXCLUDED.thread_id,
  metadata = EXCLUDED.metadata,
  updated_at = EXCLUDED.updated_at;`
	_, err = execSQL(ctx, r.pool, tx, q,
		chat.ID, chat.CompanyID, chat.EmployeeID, chat.Title, chat.ThreadID, meta, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func (r *ChatRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Chat, error) {
	const q = `
SELECT id, company_id, employee_id, title, thread_id, metadata, created_at, updated_at
FROM chats WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanChat(row)
}

func (r *ChatRepo) FindByCompany(ctx context.Context, tx repository.Tx, companyID, employeeID string) ([]*model.Chat, error) {
	q := `
SELECT id, company_id, employee_id, title, thread_id, metadata, created_at, updated_at
FROM chats WHERE company_id = $1`
	args := []interface{}{companyID}
	if employeeID != "" {
		q += ` AND employee_id = $2`
		args = append(args, employeeID)
	}
	q += ` ORDER BY updated_at DESC;`

	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*model.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Delete cascades to messages and tool calls via FK constraints.
func (r *ChatRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM chats WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(row rowScanner) (*model.Chat, error) {
	var c model.Chat
	var meta []byte
	err := row.Scan(&c.ID, &c.CompanyID, &c.EmployeeID, &c.Title, &c.ThreadID, &meta, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translateNoRows(err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chat metadata: %w", err)
		}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	return &c, nil
}
