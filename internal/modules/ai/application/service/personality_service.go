package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/internal/modules/ai/infrastructure/keywords"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PersonalityService 人格记忆管理：一批人格设定语句整体向量化后写入全局记忆。
// 人格语句不绑定房间或会话，在任何上下文检索中都可命中。
type PersonalityService struct {
	aiEntityRepo repository.AIEntityRepository
	memoryRepo   repository.AIMemoryRepository
	extractor    *keywords.YakeExtractor
	embedder     einoEmbedding.Embedder
	vectorStore  repository.VectorStore
	memoryConf   config.MemoryConfig
}

func NewPersonalityService(
	aiEntityRepo repository.AIEntityRepository,
	memoryRepo repository.AIMemoryRepository,
	extractor *keywords.YakeExtractor,
	embedder einoEmbedding.Embedder,
	vectorStore repository.VectorStore,
	memoryConf config.MemoryConfig,
) *PersonalityService {
	return &PersonalityService{
		aiEntityRepo: aiEntityRepo,
		memoryRepo:   memoryRepo,
		extractor:    extractor,
		embedder:     embedder,
		vectorStore:  vectorStore,
		memoryConf:   memoryConf,
	}
}

// UploadPersonality 为实体批量写入人格记忆。
// embedding 整批失败即整体失败，保证人格记忆要么齐全要么不写。
func (s *PersonalityService) UploadPersonality(ctx context.Context, aiEntityId int64, statements []string, importance float64) ([]entity.AIMemory, error) {
	ai, err := s.aiEntityRepo.GetById(ctx, aiEntityId)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "load ai entity failed", err)
	}
	if ai == nil {
		return nil, xerr.New(xerr.KindNotFound, fmt.Sprintf("ai entity %d not found", aiEntityId))
	}

	cleaned := make([]string, 0, len(statements))
	for _, st := range statements {
		if t := strings.TrimSpace(st); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil, xerr.New(xerr.KindValidation, "no personality statements provided")
	}
	if importance <= 0 {
		importance = 2.0
	}

	var vectors [][]float64
	if s.embedder != nil && s.vectorStore != nil {
		vectors, err = s.embedder.EmbedStrings(ctx, cleaned)
		if err != nil {
			return nil, xerr.Wrap(xerr.KindProvider, "embed personality statements failed", err)
		}
		if len(vectors) != len(cleaned) {
			return nil, xerr.New(xerr.KindProvider, fmt.Sprintf("embedding count mismatch: %d statements, %d vectors", len(cleaned), len(vectors)))
		}
	}

	created := make([]entity.AIMemory, 0, len(cleaned))
	items := make([]repository.VectorUpsertItem, 0, len(cleaned))
	for i, st := range cleaned {
		kws := s.extractor.Extract(st, s.memoryConf.MaxKeywords)
		keywordsJson, mErr := json.Marshal(kws)
		if mErr != nil {
			return nil, xerr.Wrap(xerr.KindInternal, "marshal keywords failed", mErr)
		}

		memory := &entity.AIMemory{
			AIEntityId:      aiEntityId,
			MemoryType:      entity.MemoryTypePersonality,
			Summary:         truncateRunes(st, 255),
			ContentJson:     mustJSONString(st),
			KeywordsJson:    string(keywordsJson),
			ImportanceScore: importance,
		}
		if vectors != nil {
			memory.VectorId = uuid.NewString()
		}
		if err := s.memoryRepo.Create(ctx, memory); err != nil {
			return nil, xerr.Wrap(xerr.KindInternal, "persist personality memory failed", err)
		}
		created = append(created, *memory)

		if vectors != nil {
			items = append(items, repository.VectorUpsertItem{
				ID:         memory.VectorId,
				Vector:     float64sTo32(vectors[i]),
				AIEntityID: aiEntityId,
				MemoryID:   memory.Id,
				MemoryType: entity.MemoryTypePersonality,
				Content:    st,
			})
		}
	}

	if len(items) > 0 {
		if _, err := s.vectorStore.Upsert(ctx, items); err != nil {
			return nil, xerr.Wrap(xerr.KindProvider, "upsert personality vectors failed", err)
		}
	}
	zlog.Info("personality memories uploaded",
		zap.Int64("ai_entity_id", aiEntityId), zap.Int("count", len(created)))
	return created, nil
}
