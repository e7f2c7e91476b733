package persistence

import (
	"context"
	"errors"
	"time"

	"RoomLink/internal/modules/chat/domain/entity"
	"RoomLink/internal/modules/chat/domain/repository"

	"gorm.io/gorm"
)

type messageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &messageRepositoryImpl{db: db}
}

// ListConversationMessages 最新在前分页。上下文构建侧负责倒序成时间正序。
func (r *messageRepositoryImpl) ListConversationMessages(ctx context.Context, conversationId int64, page int, pageSize int) ([]entity.Message, int64, error) {
	return r.listPaged(ctx, "conversation_id = ?", conversationId, page, pageSize)
}

func (r *messageRepositoryImpl) ListRoomMessages(ctx context.Context, roomId int64, page int, pageSize int) ([]entity.Message, int64, error) {
	return r.listPaged(ctx, "room_id = ?", roomId, page, pageSize)
}

func (r *messageRepositoryImpl) listPaged(ctx context.Context, cond string, arg int64, page int, pageSize int) ([]entity.Message, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&entity.Message{}).Where(cond, arg).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []entity.Message
	err := r.db.WithContext(ctx).
		Where(cond, arg).
		Order("send_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *messageRepositoryImpl) Create(ctx context.Context, message *entity.Message) error {
	if message == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepositoryImpl) GetById(ctx context.Context, id int64) (*entity.Message, error) {
	var m entity.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err == nil {
		return &m, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *messageRepositoryImpl) Delete(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Message{})
	return res.RowsAffected > 0, res.Error
}

func (r *messageRepositoryImpl) ListConversationsIdleSince(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("last_message_at <= ?", before).
		Order("last_message_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
