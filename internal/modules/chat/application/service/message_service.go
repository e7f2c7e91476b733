package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	aiEntity "RoomLink/internal/modules/ai/domain/entity"
	aiRepository "RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/internal/modules/chat/domain/entity"
	"RoomLink/internal/modules/chat/domain/repository"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// SendMessageRequest 房间 id 与会话 id 必须恰好提供一个
type SendMessageRequest struct {
	RoomId         *int64
	ConversationId *int64
	SenderUserId   *int64
	SenderAIId     *int64
	Content        string
	Language       string
	ReplyToId      *int64
}

// MessageService 消息入库与 AI 响应任务编排。
// 人类消息落库后为每个可能响应的 AI 实体入队一条响应任务（outbox 行），
// 是否真正响应由 worker 侧的策略判断决定，这里只负责广撒网。
type MessageService struct {
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	roomRepo         repository.RoomRepository
	aiEntityRepo     aiRepository.AIEntityRepository
	jobRepo          aiRepository.ResponseJobRepository
	translation      *TranslationService
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	roomRepo repository.RoomRepository,
	aiEntityRepo aiRepository.AIEntityRepository,
	jobRepo aiRepository.ResponseJobRepository,
	translation *TranslationService,
) *MessageService {
	return &MessageService{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		roomRepo:         roomRepo,
		aiEntityRepo:     aiEntityRepo,
		jobRepo:          jobRepo,
		translation:      translation,
	}
}

// SendMessage 校验、落库并为相关 AI 入队响应任务
func (s *MessageService) SendMessage(ctx context.Context, req *SendMessageRequest) (*entity.Message, error) {
	if req == nil {
		return nil, xerr.New(xerr.KindValidation, "request is required")
	}
	if (req.RoomId == nil) == (req.ConversationId == nil) {
		return nil, xerr.New(xerr.KindValidation, "exactly one of room_id and conversation_id must be set")
	}
	if (req.SenderUserId == nil) == (req.SenderAIId == nil) {
		return nil, xerr.New(xerr.KindValidation, "exactly one of sender_user_id and sender_ai_id must be set")
	}
	if req.Content == "" {
		return nil, xerr.New(xerr.KindValidation, "message content is required")
	}

	msg := &entity.Message{
		Content:  req.Content,
		Language: req.Language,
		SendAt:   time.Now(),
	}
	if req.RoomId != nil {
		msg.RoomId = sql.NullInt64{Int64: *req.RoomId, Valid: true}
	}
	if req.ConversationId != nil {
		msg.ConversationId = sql.NullInt64{Int64: *req.ConversationId, Valid: true}
	}
	if req.SenderUserId != nil {
		msg.SenderUserId = sql.NullInt64{Int64: *req.SenderUserId, Valid: true}
	}
	if req.SenderAIId != nil {
		msg.SenderAIId = sql.NullInt64{Int64: *req.SenderAIId, Valid: true}
	}
	if req.ReplyToId != nil {
		msg.ReplyToId = sql.NullInt64{Int64: *req.ReplyToId, Valid: true}
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "persist message failed", err)
	}
	if req.ConversationId != nil {
		if err := s.conversationRepo.TouchLastMessageAt(ctx, *req.ConversationId, msg.SendAt); err != nil {
			zlog.Warn("touch conversation last_message_at failed",
				zap.Int64("conversation_id", *req.ConversationId), zap.Error(err))
		}
	}

	// AI 自己的消息不再触发新的响应任务
	if req.SenderUserId != nil {
		s.enqueueResponseJobs(ctx, msg)
	}
	if s.translation != nil {
		s.translation.FanOut(ctx, msg)
	}
	return msg, nil
}

// enqueueResponseJobs 为所有可能响应的 AI 入队任务，入队失败只记日志不阻断发送
func (s *MessageService) enqueueResponseJobs(ctx context.Context, msg *entity.Message) {
	candidates, err := s.resolveCandidates(ctx, msg)
	if err != nil {
		zlog.Warn("resolve ai candidates failed", zap.Int64("message_id", msg.Id), zap.Error(err))
		return
	}

	for i := range candidates {
		ai := &candidates[i]
		job := &aiEntity.AIResponseJob{
			AIEntityId: sql.NullInt64{Int64: ai.Id, Valid: true},
			MessageId:  msg.Id,
			RoomId:     msg.RoomId,
			DedupKey:   fmt.Sprintf("m%d:e%d", msg.Id, ai.Id),
			Status:     aiEntity.JobStatusPending,
		}
		job.ConversationId = msg.ConversationId
		if err := s.jobRepo.Create(ctx, job); err != nil {
			// 唯一键冲突代表重复入队，静默跳过
			zlog.Debug("enqueue response job skipped",
				zap.Int64("message_id", msg.Id), zap.Int64("ai_entity_id", ai.Id), zap.Error(err))
			continue
		}
		zlog.Info("response job enqueued",
			zap.Int64("job_id", job.Id), zap.Int64("message_id", msg.Id), zap.Int64("ai_entity_id", ai.Id))
	}
}

func (s *MessageService) resolveCandidates(ctx context.Context, msg *entity.Message) ([]aiEntity.AIEntity, error) {
	var (
		ai  *aiEntity.AIEntity
		err error
	)
	if msg.RoomId.Valid {
		ai, err = s.aiEntityRepo.GetByCurrentRoom(ctx, msg.RoomId.Int64)
	} else {
		ai, err = s.aiEntityRepo.GetInConversation(ctx, msg.ConversationId.Int64)
	}
	if err != nil {
		return nil, err
	}
	if ai == nil {
		return nil, nil
	}
	return []aiEntity.AIEntity{*ai}, nil
}
