package repository

import (
	"context"

	"RoomLink/internal/modules/ai/domain/entity"
)

type AIEntityRepository interface {
	Create(ctx context.Context, e *entity.AIEntity) error
	GetById(ctx context.Context, id int64) (*entity.AIEntity, error)
	GetByName(ctx context.Context, name string) (*entity.AIEntity, error)
	// GetByCurrentRoom 查找当前驻留在指定房间的 AI（每个房间至多一个）
	GetByCurrentRoom(ctx context.Context, roomId int64) (*entity.AIEntity, error)
	// GetInConversation 查找作为成员加入指定会话的 AI
	GetInConversation(ctx context.Context, conversationId int64) (*entity.AIEntity, error)
	Update(ctx context.Context, e *entity.AIEntity) error
	ListOnline(ctx context.Context) ([]entity.AIEntity, error)
}
