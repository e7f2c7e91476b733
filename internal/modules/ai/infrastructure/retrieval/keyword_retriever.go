package retrieval

import (
	"context"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/pkg/xerr"
)

// KeywordRetriever 关键词策略：有关键词走命中检索，否则按重要性+新近度全量召回。
// 只负责广度，不做相关性过滤；存储层错误统一折叠为 KindRetrieval。
type KeywordRetriever struct {
	memoryRepo repository.AIMemoryRepository
}

func NewKeywordRetriever(memoryRepo repository.AIMemoryRepository) *KeywordRetriever {
	return &KeywordRetriever{memoryRepo: memoryRepo}
}

func (r *KeywordRetriever) RetrieveCandidates(ctx context.Context, entityId int64, query string, keywords []string, limit int) ([]entity.AIMemory, error) {
	if len(keywords) > 0 {
		memories, err := r.memoryRepo.SearchByKeywords(ctx, entityId, keywords, limit)
		if err != nil {
			return nil, xerr.Wrap(xerr.KindRetrieval, "keyword memory search failed", err)
		}
		return memories, nil
	}

	memories, err := r.memoryRepo.GetEntityMemories(ctx, entityId, nil, limit)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindRetrieval, "memory fetch failed", err)
	}
	return memories, nil
}

var _ repository.MemoryRetriever = (*KeywordRetriever)(nil)
