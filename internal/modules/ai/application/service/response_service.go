package service

import (
	"context"
	"database/sql"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/internal/modules/ai/infrastructure/keywords"
	"RoomLink/internal/modules/ai/infrastructure/llm"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	chatRepository "RoomLink/internal/modules/chat/domain/repository"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// ResponseService 负责从触发消息到落库回复的整条生成链路：
// 组装上下文 -> 调用模型 -> 持久化 AI 消息 -> 刷新冷却时间。
// 是否应当响应的策略判断独立在 ShouldAIRespond，任务编排方先问后答。
type ResponseService struct {
	contextService   *ContextService
	provider         llm.Provider
	extractor        *keywords.YakeExtractor
	messageRepo      chatRepository.MessageRepository
	conversationRepo chatRepository.ConversationRepository
	cooldownRepo     repository.AICooldownRepository
	memoryConf       config.MemoryConfig
	// randFloat 可注入，概率策略的测试需要确定性
	randFloat func() float64
}

func NewResponseService(
	contextService *ContextService,
	provider llm.Provider,
	extractor *keywords.YakeExtractor,
	messageRepo chatRepository.MessageRepository,
	conversationRepo chatRepository.ConversationRepository,
	cooldownRepo repository.AICooldownRepository,
	memoryConf config.MemoryConfig,
) *ResponseService {
	return &ResponseService{
		contextService:   contextService,
		provider:         provider,
		extractor:        extractor,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		cooldownRepo:     cooldownRepo,
		memoryConf:       memoryConf,
		randFloat:        rand.Float64,
	}
}

// GenerateConversationResponse 为会话内的触发消息生成并落库一条 AI 回复
func (s *ResponseService) GenerateConversationResponse(ctx context.Context, ai *entity.AIEntity, conversationId int64, trigger *chatEntity.Message) (*chatEntity.Message, error) {
	return s.generate(ctx, ai, nil, &conversationId, trigger)
}

// GenerateRoomResponse 同上，作用于房间公共消息流
func (s *ResponseService) GenerateRoomResponse(ctx context.Context, ai *entity.AIEntity, roomId int64, trigger *chatEntity.Message) (*chatEntity.Message, error) {
	return s.generate(ctx, ai, &roomId, nil, trigger)
}

func (s *ResponseService) generate(ctx context.Context, ai *entity.AIEntity, roomId *int64, conversationId *int64, trigger *chatEntity.Message) (*chatEntity.Message, error) {
	if ai == nil {
		return nil, xerr.New(xerr.KindValidation, "ai entity is required")
	}

	var query string
	var kws []string
	if trigger != nil {
		query = trigger.Content
		if s.extractor != nil {
			kws = s.extractor.Extract(trigger.Content, s.memoryConf.MaxKeywords)
		}
	}

	fullCtx, err := s.contextService.BuildFullContext(ctx, &FullContextRequest{
		AI:              ai,
		RoomId:          roomId,
		ConversationId:  conversationId,
		MaxMessages:     s.memoryConf.MaxContextMessages,
		MaxMemories:     s.memoryConf.MaxMemoryEntries,
		IncludeMemories: true,
		Keywords:        kws,
		Query:           query,
	})
	if err != nil {
		return nil, err
	}

	systemPrompt := ai.SystemPrompt
	if fullCtx.MemoryDigest != "" {
		systemPrompt = systemPrompt + "\n\n" + fullCtx.MemoryDigest
	}

	content, err := s.provider.GenerateResponse(ctx, fullCtx.Messages, systemPrompt, ai.Model, ai.Temperature, ai.MaxTokens)
	if err != nil {
		return nil, err
	}

	reply := &chatEntity.Message{
		SenderAIId: sql.NullInt64{Int64: ai.Id, Valid: true},
		Content:    content,
		SendAt:     time.Now(),
	}
	if roomId != nil {
		reply.RoomId = sql.NullInt64{Int64: *roomId, Valid: true}
	}
	if conversationId != nil {
		reply.ConversationId = sql.NullInt64{Int64: *conversationId, Valid: true}
	}
	if trigger != nil {
		reply.ReplyToId = sql.NullInt64{Int64: trigger.Id, Valid: true}
	}
	if err := s.messageRepo.Create(ctx, reply); err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "persist ai reply failed", err)
	}

	if conversationId != nil {
		if err := s.conversationRepo.TouchLastMessageAt(ctx, *conversationId, reply.SendAt); err != nil {
			zlog.Warn("touch conversation last_message_at failed",
				zap.Int64("conversation_id", *conversationId), zap.Error(err))
		}
	}
	if err := s.cooldownRepo.Upsert(ctx, ai.Id, roomId, conversationId, reply.SendAt); err != nil {
		zlog.Warn("upsert ai cooldown failed", zap.Int64("ai_entity_id", ai.Id), zap.Error(err))
	}
	return reply, nil
}

// ShouldAIRespond 判定 AI 是否应当响应触发消息。
// AI 自己发出的消息永远不触发响应；房间与会话各走一张策略表。
func (s *ResponseService) ShouldAIRespond(ai *entity.AIEntity, msg *chatEntity.Message) bool {
	if ai == nil || msg == nil {
		return false
	}
	if msg.IsFromAI(ai.Id) {
		return false
	}

	if msg.RoomId.Valid {
		return s.shouldRespondInRoom(ai, msg)
	}
	return s.shouldRespondInConversation(ai, msg)
}

func (s *ResponseService) shouldRespondInRoom(ai *entity.AIEntity, msg *chatEntity.Message) bool {
	switch ai.RoomStrategy {
	case entity.RoomStrategyMentionOnly:
		return mentionsAI(msg.Content, ai)
	case entity.RoomStrategyProbabilistic:
		if mentionsAI(msg.Content, ai) {
			return true
		}
		return s.randFloat() < ai.ResponseProbability
	case entity.RoomStrategyActive:
		if mentionsAI(msg.Content, ai) {
			return true
		}
		return wordCount(msg.Content) >= s.memoryConf.ActiveMinWords
	case entity.RoomStrategyNoResponse:
		return false
	default:
		return mentionsAI(msg.Content, ai)
	}
}

func (s *ResponseService) shouldRespondInConversation(ai *entity.AIEntity, msg *chatEntity.Message) bool {
	switch ai.ConversationStrategy {
	case entity.ConversationStrategyEveryMessage:
		return true
	case entity.ConversationStrategyOnQuestions:
		return isQuestion(msg.Content)
	case entity.ConversationStrategySmart:
		return isQuestion(msg.Content) || mentionsAI(msg.Content, ai)
	case entity.ConversationStrategyNoResponse:
		return false
	default:
		return true
	}
}

// mentionsAI 大小写不敏感地检查消息是否提到 AI 的名字或显示名
func mentionsAI(content string, ai *entity.AIEntity) bool {
	lower := strings.ToLower(content)
	if ai.Name != "" && strings.Contains(lower, strings.ToLower(ai.Name)) {
		return true
	}
	if ai.DisplayName != "" && strings.Contains(lower, strings.ToLower(ai.DisplayName)) {
		return true
	}
	return false
}

var questionWords = map[string]bool{
	"what": true, "how": true, "why": true,
	"when": true, "where": true, "who": true,
}

// isQuestion 问号（全半角）或疑问词开头的消息视为提问
func isQuestion(content string) bool {
	if strings.Contains(content, "?") || strings.Contains(content, "？") {
		return true
	}
	for _, tok := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if questionWords[tok] {
			return true
		}
	}
	return false
}

func wordCount(content string) int {
	return len(strings.Fields(content))
}
