package persistence

import (
	"context"
	"errors"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"

	"gorm.io/gorm"
)

type aiEntityRepositoryImpl struct {
	db *gorm.DB
}

func NewAIEntityRepository(db *gorm.DB) repository.AIEntityRepository {
	return &aiEntityRepositoryImpl{db: db}
}

func (r *aiEntityRepositoryImpl) Create(ctx context.Context, e *entity.AIEntity) error {
	if e == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *aiEntityRepositoryImpl) GetById(ctx context.Context, id int64) (*entity.AIEntity, error) {
	var e entity.AIEntity
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&e).Error
	if err == nil {
		return &e, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *aiEntityRepositoryImpl) GetByName(ctx context.Context, name string) (*entity.AIEntity, error) {
	var e entity.AIEntity
	err := r.db.WithContext(ctx).Where("name = ?", name).Take(&e).Error
	if err == nil {
		return &e, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *aiEntityRepositoryImpl) GetByCurrentRoom(ctx context.Context, roomId int64) (*entity.AIEntity, error) {
	var e entity.AIEntity
	err := r.db.WithContext(ctx).
		Where("current_room_id = ? AND status = ?", roomId, entity.AIStatusOnline).
		Order("id ASC").
		Take(&e).Error
	if err == nil {
		return &e, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

// GetInConversation 经会话成员表关联查找 AI
func (r *aiEntityRepositoryImpl) GetInConversation(ctx context.Context, conversationId int64) (*entity.AIEntity, error) {
	var e entity.AIEntity
	err := r.db.WithContext(ctx).Model(&entity.AIEntity{}).
		Joins("JOIN conversation_participant cp ON cp.ai_entity_id = ai_entity.id").
		Where("cp.conversation_id = ?", conversationId).
		Order("ai_entity.id ASC").
		Take(&e).Error
	if err == nil {
		return &e, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *aiEntityRepositoryImpl) Update(ctx context.Context, e *entity.AIEntity) error {
	if e == nil {
		return nil
	}
	// Save 全量更新，包含 current_room_id 置空
	return r.db.WithContext(ctx).Save(e).Error
}

func (r *aiEntityRepositoryImpl) ListOnline(ctx context.Context) ([]entity.AIEntity, error) {
	var entities []entity.AIEntity
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.AIStatusOnline).
		Order("id ASC").
		Find(&entities).Error
	return entities, err
}
