package persistence

import (
	"context"
	"errors"
	"time"

	"RoomLink/internal/modules/chat/domain/entity"
	"RoomLink/internal/modules/chat/domain/repository"

	"gorm.io/gorm"
)

type conversationRepositoryImpl struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) repository.ConversationRepository {
	return &conversationRepositoryImpl{db: db}
}

func (r *conversationRepositoryImpl) Create(ctx context.Context, conv *entity.Conversation) error {
	if conv == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *conversationRepositoryImpl) GetById(ctx context.Context, id int64) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *conversationRepositoryImpl) AddParticipant(ctx context.Context, p *entity.ConversationParticipant) error {
	if p == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *conversationRepositoryImpl) RemoveAIParticipant(ctx context.Context, conversationId int64, aiEntityId int64) error {
	return r.db.WithContext(ctx).
		Where("conversation_id = ? AND ai_entity_id = ?", conversationId, aiEntityId).
		Delete(&entity.ConversationParticipant{}).Error
}

func (r *conversationRepositoryImpl) ListParticipants(ctx context.Context, conversationId int64) ([]entity.ConversationParticipant, error) {
	var participants []entity.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("id ASC").
		Find(&participants).Error
	return participants, err
}

func (r *conversationRepositoryImpl) TouchLastMessageAt(ctx context.Context, conversationId int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("id = ?", conversationId).
		Updates(map[string]any{"last_message_at": at, "updated_at": at}).Error
}
