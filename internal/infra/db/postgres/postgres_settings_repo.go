// File: internal/infra/db/postgres/postgres_settings_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"helpdesk-assistant/internal/domain"
	"helpdesk-assistant/internal/domain/ports/adapter"
	"helpdesk-assistant/internal/tools"
)

// SettingsRepo reads tenant configuration and backs the tenant-scoped
// tools. These are the "simple CRUD collaborator" surfaces of the
// surrounding product; only the reads/writes the turn pipeline needs
// live here.
var (
	_ adapter.InstructionProvider = (*SettingsRepo)(nil)
	_ tools.ArticleSearcher       = (*SettingsRepo)(nil)
	_ tools.TicketCreator         = (*SettingsRepo)(nil)
	_ tools.HandoffRequester      = (*SettingsRepo)(nil)
)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

const defaultInstruction = "You are a helpdesk assistant. Answer from the company knowledge base when possible, use the available tools for tickets and live-chat handoff, and be concise."

var personalityHints = []string{
	"Keep a strictly formal, matter-of-fact tone.",
	"Keep a professional but approachable tone.",
	"Keep a friendly, conversational tone.",
	"Keep a warm, upbeat tone and use plain language.",
}

// SystemInstruction derives the per-tenant system instruction. Missing
// settings fall back to the default; personalityLevel picks a tone hint.
func (r *SettingsRepo) SystemInstruction(ctx context.Context, companyID, employeeID string, personalityLevel int) (string, error) {
	const q = `
SELECT COALESCE(assistant_name, ''), COALESCE(instructions, '')
FROM company_settings
WHERE company_id = $1;`

	var name, instructions string
	err := r.pool.QueryRow(ctx, q, companyID).Scan(&name, &instructions)
	if err != nil && !errors.Is(translateNoRows(err), domain.ErrNotFound) {
		return "", fmt.Errorf("settings read: %w", err)
	}

	var b strings.Builder
	if instructions != "" {
		b.WriteString(instructions)
	} else {
		b.WriteString(defaultInstruction)
	}
	if name != "" {
		fmt.Fprintf(&b, " Your name is %s.", name)
	}
	if personalityLevel >= 0 && personalityLevel < len(personalityHints) {
		b.WriteString(" ")
		b.WriteString(personalityHints[personalityLevel])
	}
	if employeeID != "" {
		fmt.Fprintf(&b, " You are assisting employee %s.", employeeID)
	}
	return b.String(), nil
}

func (r *SettingsRepo) SearchArticles(ctx context.Context, companyID, query string, limit int) ([]tools.Article, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `
SELECT id, title, LEFT(body, 280)
FROM kb_articles
WHERE company_id = $1 AND (title ILIKE '%' || $2 || '%' OR body ILIKE '%' || $2 || '%')
ORDER BY created_at DESC
LIMIT $3;`
	rows, err := r.pool.Query(ctx, q, companyID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []tools.Article
	for rows.Next() {
		var a tools.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Snippet); err != nil {
			return nil, err
		}
		hits = append(hits, a)
	}
	return hits, rows.Err()
}

func (r *SettingsRepo) CreateTicket(ctx context.Context, companyID, userID, subject, body, priority string) (string, error) {
	id := ulid.Make().String()
	const q = `
INSERT INTO tickets (id, company_id, user_id, subject, body, priority, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,'open',NOW());`
	if _, err := r.pool.Exec(ctx, q, id, companyID, userID, subject, body, priority); err != nil {
		return "", err
	}
	return id, nil
}

func (r *SettingsRepo) RequestHandoff(ctx context.Context, companyID, userID, reason string) (string, error) {
	id := ulid.Make().String()
	const q = `
INSERT INTO handoffs (id, company_id, user_id, reason, status, created_at)
VALUES ($1,$2,$3,$4,'queued',NOW());`
	if _, err := r.pool.Exec(ctx, q, id, companyID, userID, reason); err != nil {
		return "", err
	}
	return id, nil
}
