package repository

import (
	"context"

	"RoomLink/internal/modules/chat/domain/entity"
)

type TranslationRepository interface {
	Create(ctx context.Context, t *entity.MessageTranslation) error
	GetByMessageAndLang(ctx context.Context, messageId int64, targetLang string) (*entity.MessageTranslation, error)
	ListByMessage(ctx context.Context, messageId int64) ([]entity.MessageTranslation, error)
}
