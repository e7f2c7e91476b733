package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type aiCooldownRepositoryImpl struct {
	db *gorm.DB
}

func NewAICooldownRepository(db *gorm.DB) repository.AICooldownRepository {
	return &aiCooldownRepositoryImpl{db: db}
}

// cooldownContextKey 生成 (实体, 上下文) 唯一键，承载并发 upsert 的唯一约束
func cooldownContextKey(aiEntityId int64, roomId *int64, conversationId *int64) string {
	if roomId != nil {
		return fmt.Sprintf("e%d:r%d", aiEntityId, *roomId)
	}
	if conversationId != nil {
		return fmt.Sprintf("e%d:c%d", aiEntityId, *conversationId)
	}
	return fmt.Sprintf("e%d:global", aiEntityId)
}

// Upsert 依赖 context_key 唯一索引做 INSERT ... ON DUPLICATE KEY UPDATE，
// 并发触发同一键时不会产生重复行
func (r *aiCooldownRepositoryImpl) Upsert(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64, respondedAt time.Time) error {
	row := entity.AICooldown{
		AIEntityId:     aiEntityId,
		ContextKey:     cooldownContextKey(aiEntityId, roomId, conversationId),
		LastResponseAt: respondedAt,
		CreatedAt:      respondedAt,
		UpdatedAt:      respondedAt,
	}
	if roomId != nil {
		row.RoomId = sql.NullInt64{Int64: *roomId, Valid: true}
	}
	if conversationId != nil {
		row.ConversationId = sql.NullInt64{Int64: *conversationId, Valid: true}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "context_key"}},
		DoUpdates: clause.Assignments(map[string]any{"last_response_at": respondedAt, "updated_at": respondedAt}),
	}).Create(&row).Error
}

func (r *aiCooldownRepositoryImpl) Get(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64) (*entity.AICooldown, error) {
	var row entity.AICooldown
	err := r.db.WithContext(ctx).
		Where("context_key = ?", cooldownContextKey(aiEntityId, roomId, conversationId)).
		Take(&row).Error
	if err == nil {
		return &row, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}
