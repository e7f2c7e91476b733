package repository

import (
	"context"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
)

type AIMemoryRepository interface {
	Create(ctx context.Context, m *entity.AIMemory) error
	CreateBatch(ctx context.Context, memories []entity.AIMemory) error
	GetById(ctx context.Context, id int64) (*entity.AIMemory, error)
	// GetEntityMemories 按重要性降序、创建时间降序返回实体的记忆，roomId 非空时限定房间
	GetEntityMemories(ctx context.Context, entityId int64, roomId *int64, limit int) ([]entity.AIMemory, error)
	// SearchByKeywords 关键词命中检索，按重要性降序，平分时按 id 升序保证稳定
	SearchByKeywords(ctx context.Context, entityId int64, keywords []string, limit int) ([]entity.AIMemory, error)
	Update(ctx context.Context, m *entity.AIMemory) error
	// IncrementAccess 对选中的记忆批量 access_count+1 并刷新 last_accessed_at
	IncrementAccess(ctx context.Context, ids []int64, accessedAt time.Time) error
	Delete(ctx context.Context, id int64) error
}
