package repository

import (
	"context"
	"time"

	"RoomLink/internal/modules/chat/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	GetById(ctx context.Context, id int64) (*entity.Conversation, error)
	AddParticipant(ctx context.Context, p *entity.ConversationParticipant) error
	RemoveAIParticipant(ctx context.Context, conversationId int64, aiEntityId int64) error
	ListParticipants(ctx context.Context, conversationId int64) ([]entity.ConversationParticipant, error)
	TouchLastMessageAt(ctx context.Context, conversationId int64, at time.Time) error
}
