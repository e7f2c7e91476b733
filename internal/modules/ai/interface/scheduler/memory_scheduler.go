package scheduler

import (
	"context"
	"time"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/application/service"
	"RoomLink/internal/modules/ai/domain/repository"
	chatRepository "RoomLink/internal/modules/chat/domain/repository"
	"RoomLink/pkg/zlog"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MemoryScheduler 周期扫描沉寂的会话并为其中的 AI 沉淀记忆。
// 会话最后一条消息早于闲置阈值即视为沉寂；每轮最多处理一批，避免大扫描拖垮周期。
type MemoryScheduler struct {
	cron          *cron.Cron
	messageRepo   chatRepository.MessageRepository
	aiEntityRepo  repository.AIEntityRepository
	memoryBuilder *service.MemoryBuilderService
	conf          config.MemoryConfig
	stopChan      chan struct{}
}

func NewMemoryScheduler(
	messageRepo chatRepository.MessageRepository,
	aiEntityRepo repository.AIEntityRepository,
	memoryBuilder *service.MemoryBuilderService,
	conf config.MemoryConfig,
) *MemoryScheduler {
	return &MemoryScheduler{
		// 使用标准5段Cron表达式（不含秒）
		cron:          cron.New(),
		messageRepo:   messageRepo,
		aiEntityRepo:  aiEntityRepo,
		memoryBuilder: memoryBuilder,
		conf:          conf,
		stopChan:      make(chan struct{}),
	}
}

func (m *MemoryScheduler) Start() error {
	spec := m.conf.CronSpec
	if spec == "" {
		spec = "*/10 * * * *"
	}
	if _, err := m.cron.AddFunc(spec, m.runOnce); err != nil {
		return err
	}
	m.cron.Start()
	zlog.Info("memory scheduler started", zap.String("cron_spec", spec))
	return nil
}

func (m *MemoryScheduler) Stop() {
	m.cron.Stop()
	close(m.stopChan)
}

func (m *MemoryScheduler) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error("memory scheduler panicked", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	idle := time.Duration(m.conf.IdleMinutes) * time.Minute
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	before := time.Now().Add(-idle)

	conversationIds, err := m.messageRepo.ListConversationsIdleSince(ctx, before, 50)
	if err != nil {
		zlog.Error("list idle conversations failed", zap.Error(err))
		return
	}
	if len(conversationIds) == 0 {
		return
	}
	zlog.Info("memory scheduler tick", zap.Int("idle_conversations", len(conversationIds)))

	for _, conversationId := range conversationIds {
		m.buildForConversation(ctx, conversationId)
	}
}

func (m *MemoryScheduler) buildForConversation(ctx context.Context, conversationId int64) {
	ai, err := m.aiEntityRepo.GetInConversation(ctx, conversationId)
	if err != nil {
		zlog.Error("find conversation ai failed", zap.Int64("conversation_id", conversationId), zap.Error(err))
		return
	}
	if ai == nil {
		return
	}

	if _, err := m.memoryBuilder.CreateConversationMemory(ctx, ai.Id, conversationId); err != nil {
		zlog.Error("create conversation memory failed",
			zap.Int64("ai_entity_id", ai.Id), zap.Int64("conversation_id", conversationId), zap.Error(err))
		return
	}
	if _, err := m.memoryBuilder.ArchiveLongTermMemories(ctx, ai.Id, conversationId); err != nil {
		// 长期归档依赖 embedding，失败不影响已生成的会话摘要
		zlog.Warn("archive long term memories failed",
			zap.Int64("ai_entity_id", ai.Id), zap.Int64("conversation_id", conversationId), zap.Error(err))
	}
}
