package repository

import (
	"context"

	"edulink/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	GetByParticipantKey(ctx context.Context, key string) (*entity.Conversation, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error)
	Update(ctx context.Context, conv *entity.Conversation) error
	Delete(ctx context.Context, id string) error

	// Message methods
	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessageByClientToken(ctx context.Context, conversationID, clientToken string) (*entity.Message, error)
	GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error)
	ListUnreadMessages(ctx context.Context, conversationID, userID string) ([]*entity.Message, error)
	AddReadReceipt(ctx context.Context, conversationID, messageID, userID string) error
}
