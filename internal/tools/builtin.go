package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"helpdesk-assistant/internal/domain/ports/adapter"
)

// Article is a knowledge-base search hit.
type Article struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ArticleSearcher is the knowledge-base collaborator behind
// search_articles.
type ArticleSearcher interface {
	SearchArticles(ctx context.Context, companyID, query string, limit int) ([]Article, error)
}

// TicketCreator files helpdesk tickets on behalf of the assistant.
type TicketCreator interface {
	CreateTicket(ctx context.Context, companyID, userID, subject, body, priority string) (string, error)
}

// HandoffRequester flags a chat for takeover by a human agent.
type HandoffRequester interface {
	RequestHandoff(ctx context.Context, companyID, userID, reason string) (string, error)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// --- search_articles (tenant-scoped) ---

type searchArticlesTool struct {
	kb ArticleSearcher
}

func NewSearchArticlesTool(kb ArticleSearcher) Handler {
	return &searchArticlesTool{kb: kb}
}

func (t *searchArticlesTool) TenantScoped() bool { return true }

func (t *searchArticlesTool) Definition() adapter.ToolDefinition {
	return adapter.ToolDefinition{
		Name:        "search_articles",
		Description: "Search the company's knowledge-base articles. Returns matching titles and snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search terms"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *searchArticlesTool) Execute(ctx context.Context, tenant *TenantContext, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	hits, err := t.kb.SearchArticles(ctx, tenant.CompanyID, query, 5)
	if err != nil {
		return "", fmt.Errorf("article search: %w", err)
	}
	if len(hits) == 0 {
		return "no articles matched", nil
	}
	b, err := json.Marshal(hits)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --- create_ticket (tenant-scoped) ---

type createTicketTool struct {
	tickets TicketCreator
}

func NewCreateTicketTool(tickets TicketCreator) Handler {
	return &createTicketTool{tickets: tickets}
}

func (t *createTicketTool) TenantScoped() bool { return true }

func (t *createTicketTool) Definition() adapter.ToolDefinition {
	return adapter.ToolDefinition{
		Name:        "create_ticket",
		Description: "File a helpdesk ticket for the current user when the issue cannot be resolved in chat.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject":  map[string]any{"type": "string"},
				"body":     map[string]any{"type": "string"},
				"priority": map[string]any{"type": "string", "enum": []string{"low", "normal", "high"}},
			},
			"required": []string{"subject"},
		},
	}
}

func (t *createTicketTool) Execute(ctx context.Context, tenant *TenantContext, args map[string]any) (string, error) {
	subject := strings.TrimSpace(stringArg(args, "subject"))
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	priority := stringArg(args, "priority")
	if priority == "" {
		priority = "normal"
	}
	id, err := t.tickets.CreateTicket(ctx, tenant.CompanyID, tenant.UserID, subject, stringArg(args, "body"), priority)
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}
	return fmt.Sprintf(`{"ticketId":%q,"status":"open"}`, id), nil
}

// --- live_chat_handoff (tenant-scoped) ---

type handoffTool struct {
	handoff HandoffRequester
}

func NewLiveChatHandoffTool(h HandoffRequester) Handler {
	return &handoffTool{handoff: h}
}

func (t *handoffTool) TenantScoped() bool { return true }

func (t *handoffTool) Definition() adapter.ToolDefinition {
	return adapter.ToolDefinition{
		Name:        "live_chat_handoff",
		Description: "Hand the conversation over to a human support agent.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *handoffTool) Execute(ctx context.Context, tenant *TenantContext, args map[string]any) (string, error) {
	id, err := t.handoff.RequestHandoff(ctx, tenant.CompanyID, tenant.UserID, stringArg(args, "reason"))
	if err != nil {
		return "", fmt.Errorf("live chat handoff: %w", err)
	}
	return fmt.Sprintf(`{"handoffId":%q,"queued":true}`, id), nil
}

// --- web_search (global) ---

type webSearchTool struct {
	endpoint string
	client   *http.Client
}

// NewWebSearchTool queries an external search endpoint expected to
// answer GET ?q=<terms> with a JSON body, which is passed through to the
// model verbatim.
func NewWebSearchTool(endpoint string) Handler {
	return &webSearchTool{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *webSearchTool) TenantScoped() bool { return false }

func (t *webSearchTool) Definition() adapter.ToolDefinition {
	return adapter.ToolDefinition{
		Name:        "web_search",
		Description: "Search the public web for current information.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *webSearchTool) Execute(ctx context.Context, _ *TenantContext, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("web search http %d", resp.StatusCode)
	}
	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("web search decode: %w", err)
	}
	return string(body), nil
}
