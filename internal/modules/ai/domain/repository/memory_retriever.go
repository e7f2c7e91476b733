package repository

import (
	"context"

	"RoomLink/internal/modules/ai/domain/entity"
)

// MemoryRetriever 记忆候选检索策略抽象（关键词版 / 向量版可互换）。
// 检索器只负责广度召回，不做相关性过滤；过滤与排序由上层上下文服务完成。
type MemoryRetriever interface {
	// RetrieveCandidates keywords 非空时走关键词检索，否则按重要性+新近度返回全量候选
	RetrieveCandidates(ctx context.Context, entityId int64, query string, keywords []string, limit int) ([]entity.AIMemory, error)
}
