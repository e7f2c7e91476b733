package service

import (
	"context"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// SeedBootstrap 按配置声明式创建 AI 实体并上传人格记忆。
// 幂等：同名实体已存在时跳过创建与人格上传，只对齐在线状态与所在房间。
type SeedBootstrap struct {
	aiEntityRepo  repository.AIEntityRepository
	entityService *AIEntityService
	personality   *PersonalityService
}

func NewSeedBootstrap(aiEntityRepo repository.AIEntityRepository, entityService *AIEntityService, personality *PersonalityService) *SeedBootstrap {
	return &SeedBootstrap{
		aiEntityRepo:  aiEntityRepo,
		entityService: entityService,
		personality:   personality,
	}
}

// Apply 逐条应用种子配置，单条失败只记日志不阻断其余
func (b *SeedBootstrap) Apply(ctx context.Context, seeds []config.AISeedConfig) {
	for i := range seeds {
		if err := b.applyOne(ctx, &seeds[i]); err != nil {
			zlog.Error("apply ai entity seed failed", zap.String("name", seeds[i].Name), zap.Error(err))
		}
	}
}

func (b *SeedBootstrap) applyOne(ctx context.Context, seed *config.AISeedConfig) error {
	if seed.Name == "" {
		return nil
	}

	ai, err := b.aiEntityRepo.GetByName(ctx, seed.Name)
	if err != nil {
		return err
	}

	if ai == nil {
		ai = &entity.AIEntity{
			Name:                 seed.Name,
			DisplayName:          seed.DisplayName,
			SystemPrompt:         seed.SystemPrompt,
			Model:                seed.Model,
			Temperature:          seed.Temperature,
			MaxTokens:            seed.MaxTokens,
			RoomStrategy:         seed.RoomStrategy,
			ConversationStrategy: seed.ConversationStrategy,
			ResponseProbability:  seed.ResponseProbability,
		}
		if err := b.entityService.CreateEntity(ctx, ai); err != nil {
			return err
		}
		if len(seed.Personality) > 0 {
			if _, err := b.personality.UploadPersonality(ctx, ai.Id, seed.Personality, 0); err != nil {
				zlog.Warn("seed personality upload failed", zap.String("name", seed.Name), zap.Error(err))
			}
		}
	}

	if seed.Online {
		if err := b.entityService.SetOnline(ctx, ai.Id); err != nil {
			return err
		}
		if seed.RoomId > 0 {
			if err := b.entityService.JoinRoom(ctx, ai.Id, seed.RoomId); err != nil {
				return err
			}
		}
	}
	return nil
}
