// Package convert maps between persisted messages and their stream-item
// and provider-turn representations. All functions are pure and
// stateless.
package convert

import (
	"helpdesk-assistant/internal/domain/model"
	"helpdesk-assistant/internal/domain/ports/adapter"
)

// ToStreamItems renders one persisted message as stream items. ToolCall
// items are emitted strictly before the message item itself, in recorded
// order: tools ran first, then the response referencing their output was
// generated.
func ToStreamItems(msg *model.Message) []model.StreamItem {
	items := make([]model.StreamItem, 0, len(msg.ToolCalls)+1)
	for _, tc := range msg.ToolCalls {
		items = append(items, model.StreamItem{
			ID:        tc.ID,
			Type:      model.StreamItemToolCall,
			ToolType:  tc.Type,
			Name:      tc.Name,
			Status:    tc.Status,
			Arguments: tc.Arguments,
			Output:    tc.Output,
		})
	}
	items = append(items, model.StreamItem{
		ID:      msg.ID,
		Type:    model.StreamItemMessage,
		Role:    msg.Role,
		Content: msg.Content,
	})
	return items
}

// MessageFromStreamItems reconstructs a message from its stream items.
// Inverse of ToStreamItems: id, role, content and tool-call
// identity/order survive the round trip.
func MessageFromStreamItems(chatID string, items []model.StreamItem) *model.Message {
	msg := &model.Message{ChatID: chatID}
	for _, it := range items {
		switch it.Type {
		case model.StreamItemToolCall:
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID:        it.ID,
				Type:      it.ToolType,
				Name:      it.Name,
				Arguments: it.Arguments,
				Output:    it.Output,
				Status:    it.Status,
			})
		case model.StreamItemMessage:
			msg.ID = it.ID
			msg.Role = it.Role
			msg.Content = it.Content
		}
	}
	return msg
}

// TokenCounter estimates prompt tokens for a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// ToConversationHistory strips messages down to role and textual content
// for replay into model context. Tool-call detail is not carried beyond
// what is embedded in message content, keeping prompt size bounded.
//
// When tokenBudget > 0 the oldest messages are dropped first until the
// remainder fits; the newest message is always kept.
func ToConversationHistory(msgs []*model.Message, tokenBudget int, counter TokenCounter) []adapter.Turn {
	turns := make([]adapter.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, adapter.Turn{Role: string(m.Role), Content: m.Content})
	}
	if tokenBudget <= 0 || counter == nil || len(turns) == 0 {
		return turns
	}

	total := 0
	counts := make([]int, len(turns))
	for i, t := range turns {
		counts[i] = counter.Count(t.Content)
		total += counts[i]
	}
	drop := 0
	for total > tokenBudget && drop < len(turns)-1 {
		total -= counts[drop]
		drop++
	}
	return turns[drop:]
}
