package retrieval

import (
	"context"
	"fmt"
	"strings"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/pkg/xerr"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
)

// VectorRetriever 向量策略：对查询文本做嵌入后走向量库近邻检索，
// 命中项回查 MySQL 取完整记忆行。无查询文本时退化为关键词策略的全量路径。
type VectorRetriever struct {
	memoryRepo  repository.AIMemoryRepository
	vectorStore repository.VectorStore
	embedder    einoEmbedding.Embedder
}

func NewVectorRetriever(memoryRepo repository.AIMemoryRepository, vectorStore repository.VectorStore, embedder einoEmbedding.Embedder) *VectorRetriever {
	return &VectorRetriever{memoryRepo: memoryRepo, vectorStore: vectorStore, embedder: embedder}
}

func (r *VectorRetriever) RetrieveCandidates(ctx context.Context, entityId int64, query string, keywords []string, limit int) ([]entity.AIMemory, error) {
	queryText := strings.TrimSpace(query)
	if queryText == "" && len(keywords) > 0 {
		queryText = strings.Join(keywords, " ")
	}
	if queryText == "" || r.vectorStore == nil || r.embedder == nil {
		memories, err := r.memoryRepo.GetEntityMemories(ctx, entityId, nil, limit)
		if err != nil {
			return nil, xerr.Wrap(xerr.KindRetrieval, "memory fetch failed", err)
		}
		return memories, nil
	}

	vectors, err := r.embedder.EmbedStrings(ctx, []string{queryText})
	if err != nil {
		return nil, xerr.Wrap(xerr.KindRetrieval, "query embedding failed", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, xerr.New(xerr.KindRetrieval, "query embedding returned no vector")
	}
	qv := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		qv[i] = float32(v)
	}

	hits, err := r.vectorStore.Search(ctx, qv, limit, fmt.Sprintf("ai_entity_id == %d", entityId))
	if err != nil {
		return nil, xerr.Wrap(xerr.KindRetrieval, "vector search failed", err)
	}

	memories := make([]entity.AIMemory, 0, len(hits))
	seen := make(map[int64]bool, len(hits))
	for _, hit := range hits {
		if hit.MemoryID == 0 || seen[hit.MemoryID] {
			continue
		}
		seen[hit.MemoryID] = true
		m, err := r.memoryRepo.GetById(ctx, hit.MemoryID)
		if err != nil {
			return nil, xerr.Wrap(xerr.KindRetrieval, "memory lookup failed", err)
		}
		if m == nil {
			continue
		}
		memories = append(memories, *m)
	}
	return memories, nil
}

var _ repository.MemoryRetriever = (*VectorRetriever)(nil)
