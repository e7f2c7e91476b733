package persistence

import (
	"context"
	"errors"

	"RoomLink/internal/modules/chat/domain/entity"
	"RoomLink/internal/modules/chat/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type translationRepositoryImpl struct {
	db *gorm.DB
}

func NewTranslationRepository(db *gorm.DB) repository.TranslationRepository {
	return &translationRepositoryImpl{db: db}
}

// Create 同一 (消息, 语言) 重复写入时覆盖旧译文
func (r *translationRepositoryImpl) Create(ctx context.Context, t *entity.MessageTranslation) error {
	if t == nil {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "target_lang"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "provider"}),
	}).Create(t).Error
}

func (r *translationRepositoryImpl) GetByMessageAndLang(ctx context.Context, messageId int64, targetLang string) (*entity.MessageTranslation, error) {
	var t entity.MessageTranslation
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND target_lang = ?", messageId, targetLang).
		Take(&t).Error
	if err == nil {
		return &t, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *translationRepositoryImpl) ListByMessage(ctx context.Context, messageId int64) ([]entity.MessageTranslation, error) {
	var list []entity.MessageTranslation
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageId).
		Order("target_lang ASC").
		Find(&list).Error
	return list, err
}
