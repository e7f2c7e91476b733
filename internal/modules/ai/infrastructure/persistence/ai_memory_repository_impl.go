package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"

	"gorm.io/gorm"
)

type aiMemoryRepositoryImpl struct {
	db *gorm.DB
}

func NewAIMemoryRepository(db *gorm.DB) repository.AIMemoryRepository {
	return &aiMemoryRepositoryImpl{db: db}
}

func (r *aiMemoryRepositoryImpl) Create(ctx context.Context, m *entity.AIMemory) error {
	if m == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *aiMemoryRepositoryImpl) CreateBatch(ctx context.Context, memories []entity.AIMemory) error {
	if len(memories) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&memories).Error
}

func (r *aiMemoryRepositoryImpl) GetById(ctx context.Context, id int64) (*entity.AIMemory, error) {
	var m entity.AIMemory
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err == nil {
		return &m, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *aiMemoryRepositoryImpl) GetEntityMemories(ctx context.Context, entityId int64, roomId *int64, limit int) ([]entity.AIMemory, error) {
	q := r.db.WithContext(ctx).Model(&entity.AIMemory{}).Where("ai_entity_id = ?", entityId)
	if roomId != nil {
		q = q.Where("room_id = ?", *roomId)
	}
	var memories []entity.AIMemory
	err := q.Order("importance_score DESC, created_at DESC, id ASC").Limit(limit).Find(&memories).Error
	return memories, err
}

// SearchByKeywords 关键词命中 keywords_json 即算匹配，重要性降序、id 升序保证稳定排序
func (r *aiMemoryRepositoryImpl) SearchByKeywords(ctx context.Context, entityId int64, keywords []string, limit int) ([]entity.AIMemory, error) {
	if len(keywords) == 0 {
		return []entity.AIMemory{}, nil
	}
	q := r.db.WithContext(ctx).Model(&entity.AIMemory{}).Where("ai_entity_id = ?", entityId)

	conds := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		conds = append(conds, "keywords_json LIKE ?")
		args = append(args, fmt.Sprintf("%%\"%s\"%%", kw))
	}
	if len(conds) == 0 {
		return []entity.AIMemory{}, nil
	}
	q = q.Where("("+strings.Join(conds, " OR ")+")", args...)

	var memories []entity.AIMemory
	err := q.Order("importance_score DESC, id ASC").Limit(limit).Find(&memories).Error
	return memories, err
}

func (r *aiMemoryRepositoryImpl) Update(ctx context.Context, m *entity.AIMemory) error {
	if m == nil {
		return nil
	}
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *aiMemoryRepositoryImpl) IncrementAccess(ctx context.Context, ids []int64, accessedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.AIMemory{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": accessedAt,
			"updated_at":       accessedAt,
		}).Error
}

func (r *aiMemoryRepositoryImpl) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.AIMemory{}).Error
}
