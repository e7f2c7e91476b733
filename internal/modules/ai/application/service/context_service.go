package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	chatRepository "RoomLink/internal/modules/chat/domain/repository"
	userRepository "RoomLink/internal/modules/user/domain/repository"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ContextService 组装交给对话模型的上下文：时间正序的消息列表 + 过滤排序后的记忆摘要。
//
// 两条关键约定：
// 1) 消息库按最新在前返回，这里必须倒序成时间正序再交给模型；
// 2) 所有历史条目统一使用 user 角色并带说话人前缀，人格完全来自系统提示词。
//    多方房间里给多个 AI 混用 assistant 角色在语义上是错的。
type ContextService struct {
	messageRepo     chatRepository.MessageRepository
	userRepo        userRepository.UserInfoRepository
	aiEntityRepo    repository.AIEntityRepository
	memoryRepo      repository.AIMemoryRepository
	retriever       repository.MemoryRetriever
	overfetchFactor int
}

func NewContextService(
	messageRepo chatRepository.MessageRepository,
	userRepo userRepository.UserInfoRepository,
	aiEntityRepo repository.AIEntityRepository,
	memoryRepo repository.AIMemoryRepository,
	retriever repository.MemoryRetriever,
	overfetchFactor int,
) *ContextService {
	if overfetchFactor <= 0 {
		overfetchFactor = 4
	}
	return &ContextService{
		messageRepo:     messageRepo,
		userRepo:        userRepo,
		aiEntityRepo:    aiEntityRepo,
		memoryRepo:      memoryRepo,
		retriever:       retriever,
		overfetchFactor: overfetchFactor,
	}
}

// FullContextRequest 描述一次完整上下文组装：会话 / 房间二选一
type FullContextRequest struct {
	AI              *entity.AIEntity
	ConversationId  *int64
	RoomId          *int64
	MaxMessages     int
	MaxMemories     int
	IncludeMemories bool
	Keywords        []string
	Query           string
}

// FullContext 组装结果。MemoryDigest 为空字符串表示没有可用记忆
type FullContext struct {
	Messages     []*schema.Message
	MemoryDigest string
}

// BuildConversationContext 取会话最近 maxMessages 条消息并格式化为模型输入
func (s *ContextService) BuildConversationContext(ctx context.Context, conversationId int64, ai *entity.AIEntity, maxMessages int) ([]*schema.Message, error) {
	if maxMessages <= 0 {
		maxMessages = 50
	}
	messages, _, err := s.messageRepo.ListConversationMessages(ctx, conversationId, 1, maxMessages)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindRetrieval, "fetch conversation messages failed", err)
	}
	return s.formatMessages(ctx, messages, ai)
}

// BuildRoomContext 同 BuildConversationContext，作用于房间公共消息流
func (s *ContextService) BuildRoomContext(ctx context.Context, roomId int64, ai *entity.AIEntity, maxMessages int) ([]*schema.Message, error) {
	if maxMessages <= 0 {
		maxMessages = 50
	}
	messages, _, err := s.messageRepo.ListRoomMessages(ctx, roomId, 1, maxMessages)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindRetrieval, "fetch room messages failed", err)
	}
	return s.formatMessages(ctx, messages, ai)
}

// BuildFullContext 一次性组装消息上下文与记忆摘要。
// 会话 id 与房间 id 必须恰好提供一个；IncludeMemories 为 false 时完全不触发记忆检索。
func (s *ContextService) BuildFullContext(ctx context.Context, req *FullContextRequest) (*FullContext, error) {
	if req == nil || req.AI == nil {
		return nil, xerr.New(xerr.KindValidation, "ai entity is required")
	}
	if (req.ConversationId == nil) == (req.RoomId == nil) {
		return nil, xerr.New(xerr.KindValidation, "exactly one of conversation_id and room_id must be set")
	}

	var (
		messages []*schema.Message
		err      error
	)
	if req.ConversationId != nil {
		messages, err = s.BuildConversationContext(ctx, *req.ConversationId, req.AI, req.MaxMessages)
	} else {
		messages, err = s.BuildRoomContext(ctx, *req.RoomId, req.AI, req.MaxMessages)
	}
	if err != nil {
		return nil, err
	}

	result := &FullContext{Messages: messages}
	if !req.IncludeMemories {
		return result, nil
	}

	// 检索失败必须上抛：调用方要能区分“没有记忆”和“查不到记忆”
	digest, err := s.GetAIMemories(ctx, req.AI.Id, req.Query, req.Keywords, req.MaxMemories)
	if err != nil {
		return nil, err
	}
	result.MemoryDigest = digest
	return result, nil
}

// GetAIMemories 检索并格式化记忆摘要。
// 先按 maxEntries*overfetchFactor 放量召回，再按重要性降序截断，
// 只对最终选中的记忆更新访问统计。
func (s *ContextService) GetAIMemories(ctx context.Context, entityId int64, query string, keywords []string, maxEntries int) (string, error) {
	if maxEntries <= 0 {
		maxEntries = 10
	}
	candidates, err := s.retriever.RetrieveCandidates(ctx, entityId, query, keywords, maxEntries*s.overfetchFactor)
	if err != nil {
		return "", xerr.Wrap(xerr.KindRetrieval, "retrieve memory candidates failed", err)
	}
	if len(candidates) == 0 {
		return "", nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ImportanceScore > candidates[j].ImportanceScore
	})
	if len(candidates) > maxEntries {
		candidates = candidates[:maxEntries]
	}

	selectedIds := make([]int64, 0, len(candidates))
	for _, m := range candidates {
		selectedIds = append(selectedIds, m.Id)
	}
	if err := s.memoryRepo.IncrementAccess(ctx, selectedIds, time.Now()); err != nil {
		// 访问统计失败只影响后续排序权重，不影响本次摘要
		zlog.Warn("increment memory access failed", zap.Int64("ai_entity_id", entityId), zap.Error(err))
	}

	return formatMemoryDigest(candidates), nil
}

// formatMemoryDigest 渲染记忆摘要：每条用四舍五入后的重要性分数个 "!" 标记
func formatMemoryDigest(memories []entity.AIMemory) string {
	var b strings.Builder
	b.WriteString("# Previous Memories:\n")
	for _, m := range memories {
		marks := int(math.Round(m.ImportanceScore))
		if marks > 0 {
			b.WriteString(strings.Repeat("!", marks))
			b.WriteString(" ")
		}
		b.WriteString(m.Summary)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatMessages 倒序为时间正序，并把每条消息渲染为 "{说话人}: {内容}" 的 user 角色条目
func (s *ContextService) formatMessages(ctx context.Context, newestFirst []chatEntity.Message, ai *entity.AIEntity) ([]*schema.Message, error) {
	labels, err := s.resolveSpeakerLabels(ctx, newestFirst, ai)
	if err != nil {
		return nil, err
	}

	formatted := make([]*schema.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		m := &newestFirst[i]
		formatted = append(formatted, schema.UserMessage(fmt.Sprintf("%s: %s", labels[m.Id], m.Content)))
	}
	return formatted, nil
}

// resolveSpeakerLabels 为每条消息解析说话人标签：
// 人类 -> username（批量查询），当前 AI 自己 -> "You"，其他 AI -> display_name，
// 发送者缺失或查不到 -> "Unknown"。
func (s *ContextService) resolveSpeakerLabels(ctx context.Context, messages []chatEntity.Message, ai *entity.AIEntity) (map[int64]string, error) {
	userIdSet := make(map[int64]struct{})
	for i := range messages {
		if messages[i].SenderUserId.Valid {
			userIdSet[messages[i].SenderUserId.Int64] = struct{}{}
		}
	}
	userNames := make(map[int64]string, len(userIdSet))
	if len(userIdSet) > 0 {
		ids := make([]int64, 0, len(userIdSet))
		for id := range userIdSet {
			ids = append(ids, id)
		}
		users, err := s.userRepo.GetBatchUserInfo(ctx, ids)
		if err != nil {
			return nil, xerr.Wrap(xerr.KindRetrieval, "batch fetch sender users failed", err)
		}
		for i := range users {
			userNames[users[i].Id] = users[i].Username
		}
	}

	aiNames := make(map[int64]string)
	labels := make(map[int64]string, len(messages))
	for i := range messages {
		m := &messages[i]
		switch {
		case m.SenderUserId.Valid:
			if name, ok := userNames[m.SenderUserId.Int64]; ok {
				labels[m.Id] = name
			} else {
				labels[m.Id] = "Unknown"
			}
		case m.SenderAIId.Valid:
			senderAIId := m.SenderAIId.Int64
			if ai != nil && senderAIId == ai.Id {
				labels[m.Id] = "You"
				continue
			}
			if name, ok := aiNames[senderAIId]; ok {
				labels[m.Id] = name
				continue
			}
			other, err := s.aiEntityRepo.GetById(ctx, senderAIId)
			if err != nil || other == nil {
				aiNames[senderAIId] = "Unknown"
			} else {
				aiNames[senderAIId] = other.DisplayName
			}
			labels[m.Id] = aiNames[senderAIId]
		default:
			labels[m.Id] = "Unknown"
		}
	}
	return labels, nil
}
