package repository

import (
	"context"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
)

type AICooldownRepository interface {
	// Upsert 原子写入 (实体, 房间或会话) 的最近响应时间，并发触发同一键时幂等
	Upsert(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64, respondedAt time.Time) error
	Get(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64) (*entity.AICooldown, error)
}
