package repository

import (
	"context"

	"helpdesk-assistant/internal/domain/model"
)

type ChatRepository interface {
	Save(ctx context.Context, tx Tx, chat *model.Chat) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Chat, error)
	FindByCompany(ctx context.Context, tx Tx, companyID, employeeID string) ([]*model.Chat, error)
	// Delete removes the chat and cascades to its messages and tool calls.
	Delete(ctx context.Context, tx Tx, id string) error
}

// MessagePage is one page of a company-wide message listing.
type MessagePage struct {
	Messages []*model.Message
	Total    int
	Page     int
	Limit    int
}

func (p MessagePage) HasMore() bool {
	return p.Page*p.Limit < p.Total
}

type MessageRepository interface {
	// SaveMessage persists the message and its tool calls. Tool call rows
	// are written before the message row, inside one transaction when a
	// Tx is supplied.
	SaveMessage(ctx context.Context, tx Tx, msg *model.Message) error

	// ListByChat returns the chat's messages with tool calls, ordered by
	// CreatedAt ascending (conversation replay order).
	ListByChat(ctx context.Context, tx Tx, chatID string) ([]*model.Message, error)

	ListByCompany(ctx context.Context, companyID string, page, limit int) (*MessagePage, error)
}
