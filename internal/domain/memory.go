package domain

import "context"

// ConversationStore holds the transcripts of live chat screens.
// It has no update operation: conversations only grow until discarded.
type ConversationStore interface {
	CreateConversation(ctx context.Context, id string, role Role) error
	AppendMessage(ctx context.Context, convID string, msg Message) error
	Messages(ctx context.Context, convID string) ([]Message, error)
	CountMessages(ctx context.Context, convID string) (int, error)
	DiscardConversation(ctx context.Context, id string) error
	Close() error
}
