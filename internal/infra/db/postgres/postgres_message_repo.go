// File: internal/infra/db/postgres/postgres_message_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/repository"
	"helpdesk-assistant/internal/infra/security"
)

// MessageRepo persists messages and their tool calls, with optional
// encryption-at-rest when the owning company's settings opt in.
var _ repository.MessageRepository = (*MessageRepo)(nil)

type MessageRepo struct {
	pool          *pgxpool.Pool
	encryptionSvc *security.EncryptionService
}

func NewMessageRepo(pool *pgxpool.Pool, encryptionSvc *security.EncryptionService) *MessageRepo {
	return &MessageRepo{pool: pool, encryptionSvc: encryptionSvc}
}

// SaveMessage writes tool_calls rows before the messages row. Callers
// pass a Tx when the write must be atomic with job completion.
func (r *MessageRepo) SaveMessage(ctx context.Context, tx repository.Tx, m *model.Message) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}

	encFlag := false
	payload := m.Content
	if r.encryptionSvc != nil {
		encrypt, err := r.companyEncrypts(ctx, tx, m.ChatID)
		if err != nil {
			return err
		}
		if encrypt {
			payload, err = r.encryptionSvc.Encrypt(m.Content)
			if err != nil {
				return fmt.Errorf("encrypt message: %w", err)
			}
			encFlag = true
		}
	}

	// Tool calls first: replay order and the causal invariant both lean
	// on this write order.
	const qTC = `
INSERT INTO tool_calls (id, message_id, seq, type, name, arguments, output, status, code, files)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	for i := range m.ToolCalls {
		tc := &m.ToolCalls[i]
		files, err := json.Marshal(tc.Files)
		if err != nil {
			return fmt.Errorf("marshal tool call files: %w", err)
		}
		if _, err := execSQL(ctx, r.pool, tx, qTC,
			tc.ID, m.ID, i, tc.Type, tc.Name, tc.Arguments, tc.Output, string(tc.Status), tc.Code, files); err != nil {
			return fmt.Errorf("save tool call: %w", err)
		}
	}

	const qMsg = `
INSERT INTO messages (id, chat_id, role, content, encrypted, created_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()));`
	if _, err := execSQL(ctx, r.pool, tx, qMsg,
		m.ID, m.ChatID, string(m.Role), payload, encFlag, m.CreatedAt); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *MessageRepo) companyEncrypts(ctx context.Context, tx repository.Tx, chatID string) (bool, error) {
	const q = `
SELECT COALESCE(cs.encrypt_transcripts, FALSE)
FROM chats c
LEFT JOIN company_settings cs ON cs.company_id = c.company_id
WHERE c.id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, chatID)
	if err != nil {
		return false, err
	}
	var encrypt bool
	if err := row.Scan(&encrypt); err != nil {
		return false, translateNoRows(err)
	}
	return encrypt, nil
}

// ListByChat returns messages in CreatedAt ascending order (id as the
// tiebreak; ULIDs sort by creation time) with tool calls attached in
// recorded order.
func (r *MessageRepo) ListByChat(ctx context.Context, tx repository.Tx, chatID string) ([]*model.Message, error) {
	const q = `
SELECT id, chat_id, role, content, encrypted, created_at
FROM messages
WHERE chat_id = $1
ORDER BY created_at ASC, id ASC;`
	rows, err := pickRows(ctx, r.pool, tx, q, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := r.collectMessages(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachToolCalls(ctx, tx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) ListByCompany(ctx context.Context, companyID string, page, limit int) (*repository.MessagePage, error) {
	const qCount = `
SELECT COUNT(*)
FROM messages m JOIN chats c ON c.id = m.chat_id
WHERE c.company_id = $1;`
	var total int
	if err := r.pool.QueryRow(ctx, qCount, companyID).Scan(&total); err != nil {
		return nil, err
	}

	const q = `
SELECT m.id, m.chat_id, m.role, m.content, m.encrypted, m.created_at
FROM messages m JOIN chats c ON c.id = m.chat_id
WHERE c.company_id = $1
ORDER BY m.created_at DESC, m.id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.pool.Query(ctx, q, companyID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	msgs, err := r.collectMessages(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachToolCalls(ctx, nil, msgs); err != nil {
		return nil, err
	}
	return &repository.MessagePage{Messages: msgs, Total: total, Page: page, Limit: limit}, nil
}

func (r *MessageRepo) collectMessages(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close()
	Err() error
}) ([]*model.Message, error) {
	defer rows.Close()
	var msgs []*model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var encrypted bool
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &encrypted, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = model.MessageRole(role)
		if encrypted && r.encryptionSvc != nil {
			plain, err := r.encryptionSvc.Decrypt(m.Content)
			if err != nil {
				return nil, fmt.Errorf("decrypt message %s: %w", m.ID, err)
			}
			m.Content = plain
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepo) attachToolCalls(ctx context.Context, tx repository.Tx, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	byID := make(map[string]*model.Message, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		byID[m.ID] = m
	}

	const q = `
SELECT id, message_id, type, name, arguments, output, status, code, files
FROM tool_calls
WHERE message_id = ANY($1)
ORDER BY message_id, seq ASC;`
	rows, err := pickRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tc model.ToolCall
		var msgID, status string
		var files []byte
		if err := rows.Scan(&tc.ID, &msgID, &tc.Type, &tc.Name, &tc.Arguments, &tc.Output, &status, &tc.Code, &files); err != nil {
			return err
		}
		tc.Status = model.ToolCallStatus(status)
		if len(files) > 0 {
			if err := json.Unmarshal(files, &tc.Files); err != nil {
				return fmt.Errorf("unmarshal tool call files: %w", err)
			}
		}
		if m := byID[msgID]; m != nil {
			m.ToolCalls = append(m.ToolCalls, tc)
		}
	}
	return rows.Err()
}
