package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	chatRepository "RoomLink/internal/modules/chat/domain/repository"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// AIEntityService AI 实体生命周期管理：创建、上下线、进出房间 / 会话。
// 不变量：一个房间同一时刻最多一个在线 AI；一个会话同一时刻最多一个 AI 成员；
// 离线实体必须同时离开房间。
type AIEntityService struct {
	aiEntityRepo     repository.AIEntityRepository
	roomRepo         chatRepository.RoomRepository
	conversationRepo chatRepository.ConversationRepository
}

func NewAIEntityService(
	aiEntityRepo repository.AIEntityRepository,
	roomRepo chatRepository.RoomRepository,
	conversationRepo chatRepository.ConversationRepository,
) *AIEntityService {
	return &AIEntityService{
		aiEntityRepo:     aiEntityRepo,
		roomRepo:         roomRepo,
		conversationRepo: conversationRepo,
	}
}

// CreateEntity 创建实体，name 全局唯一
func (s *AIEntityService) CreateEntity(ctx context.Context, ai *entity.AIEntity) error {
	if ai == nil || ai.Name == "" {
		return xerr.New(xerr.KindValidation, "ai entity name is required")
	}
	existing, err := s.aiEntityRepo.GetByName(ctx, ai.Name)
	if err != nil {
		return xerr.Wrap(xerr.KindInternal, "check ai entity name failed", err)
	}
	if existing != nil {
		return xerr.New(xerr.KindValidation, fmt.Sprintf("ai entity name %q already exists", ai.Name))
	}
	ai.Status = entity.AIStatusOffline
	if err := s.aiEntityRepo.Create(ctx, ai); err != nil {
		return xerr.Wrap(xerr.KindInternal, "create ai entity failed", err)
	}
	zlog.Info("ai entity created", zap.Int64("ai_entity_id", ai.Id), zap.String("name", ai.Name))
	return nil
}

// SetOnline 上线实体
func (s *AIEntityService) SetOnline(ctx context.Context, aiEntityId int64) error {
	ai, err := s.mustGet(ctx, aiEntityId)
	if err != nil {
		return err
	}
	ai.Status = entity.AIStatusOnline
	if err := s.aiEntityRepo.Update(ctx, ai); err != nil {
		return xerr.Wrap(xerr.KindInternal, "update ai entity failed", err)
	}
	zlog.Info("ai entity online", zap.Int64("ai_entity_id", aiEntityId))
	return nil
}

// SetOffline 下线实体并同时离开当前房间
func (s *AIEntityService) SetOffline(ctx context.Context, aiEntityId int64) error {
	ai, err := s.mustGet(ctx, aiEntityId)
	if err != nil {
		return err
	}
	ai.Status = entity.AIStatusOffline
	ai.CurrentRoomId = sql.NullInt64{}
	if err := s.aiEntityRepo.Update(ctx, ai); err != nil {
		return xerr.Wrap(xerr.KindInternal, "update ai entity failed", err)
	}
	zlog.Info("ai entity offline", zap.Int64("ai_entity_id", aiEntityId))
	return nil
}

// JoinRoom 实体进入房间。要求实体在线，且目标房间没有其他在线 AI
func (s *AIEntityService) JoinRoom(ctx context.Context, aiEntityId int64, roomId int64) error {
	ai, err := s.mustGet(ctx, aiEntityId)
	if err != nil {
		return err
	}
	if !ai.IsOnline() {
		return xerr.New(xerr.KindValidation, fmt.Sprintf("ai entity %d is offline", aiEntityId))
	}
	room, err := s.roomRepo.GetById(ctx, roomId)
	if err != nil {
		return xerr.Wrap(xerr.KindInternal, "load room failed", err)
	}
	if room == nil {
		return xerr.New(xerr.KindNotFound, fmt.Sprintf("room %d not found", roomId))
	}
	occupant, err := s.aiEntityRepo.GetByCurrentRoom(ctx, roomId)
	if err != nil {
		return xerr.Wrap(xerr.KindInternal, "check room occupancy failed", err)
	}
	if occupant != nil && occupant.Id != aiEntityId {
		return xerr.New(xerr.KindValidation, fmt.Sprintf("room %d already hosts ai entity %d", roomId, occupant.Id))
	}

	ai.CurrentRoomId = sql.NullInt64{Int64: roomId, Valid: true}
	if err := s.aiEntityRepo.Update(ctx, ai); err != nil {
		return xerr.Wrap(xerr.KindInternal, "update ai entity failed", err)
	}
	zlog.Info("ai entity joined room", zap.Int64("ai_entity_id", aiEntityId), zap.Int64("room_id", roomId))
	return nil
}

// LeaveRoom 实体离开当前房间，未在任何房间时幂等返回
func (s *AIEntityService) LeaveRoom(ctx context.Context, aiEntityId int64) error {
	ai, err := s.mustGet(ctx, aiEntityId)
	if err != nil {
		return err
	}
	if !ai.CurrentRoomId.Valid {
		return nil
	}
	ai.CurrentRoomId = sql.NullInt64{}
	if err := s.aiEntityRepo.Update(ctx, ai); err != nil {
		return xerr.Wrap(xerr.KindInternal, "update ai entity failed", err)
	}
	zlog.Info("ai entity left room", zap.Int64("ai_entity_id", aiEntityId))
	return nil
}

// InviteToConversation 把实体拉入会话。要求实体在线，且会话内没有其他 AI 成员
func (s *AIEntityService) InviteToConversation(ctx context.Context, aiEntityId int64, conversationId int64) error {
	ai, err := s.mustGet(ctx, aiEntityId)
	if err != nil {
		return err
	}
	if !ai.IsOnline() {
		return xerr.New(xerr.KindValidation, fmt.Sprintf("ai entity %d is offline", aiEntityId))
	}
	conv, err := s.conversationRepo.GetById(ctx, conversationId)
	if err != nil {
		return xerr.Wrap(xerr.KindInternal, "load conversation failed", err)
	}
	if conv == nil {
		return xerr.New(xerr.KindNotFound, fmt.Sprintf("conversation %d not found", conversationId))
	}
	member, err := s.aiEntityRepo.GetInConversation(ctx, conversationId)
	if err != nil {
		return xerr.Wrap(xerr.KindInternal, "check conversation membership failed", err)
	}
	if member != nil {
		if member.Id == aiEntityId {
			return nil
		}
		return xerr.New(xerr.KindValidation, fmt.Sprintf("conversation %d already hosts ai entity %d", conversationId, member.Id))
	}

	p := &chatEntity.ConversationParticipant{
		ConversationId: conversationId,
		AIEntityId:     sql.NullInt64{Int64: aiEntityId, Valid: true},
		JoinedAt:       time.Now(),
	}
	if err := s.conversationRepo.AddParticipant(ctx, p); err != nil {
		return xerr.Wrap(xerr.KindInternal, "add conversation participant failed", err)
	}
	zlog.Info("ai entity joined conversation",
		zap.Int64("ai_entity_id", aiEntityId), zap.Int64("conversation_id", conversationId))
	return nil
}

// RemoveFromConversation 把实体移出会话，不在会话中时幂等返回
func (s *AIEntityService) RemoveFromConversation(ctx context.Context, aiEntityId int64, conversationId int64) error {
	if _, err := s.mustGet(ctx, aiEntityId); err != nil {
		return err
	}
	if err := s.conversationRepo.RemoveAIParticipant(ctx, conversationId, aiEntityId); err != nil {
		return xerr.Wrap(xerr.KindInternal, "remove conversation participant failed", err)
	}
	zlog.Info("ai entity left conversation",
		zap.Int64("ai_entity_id", aiEntityId), zap.Int64("conversation_id", conversationId))
	return nil
}

func (s *AIEntityService) mustGet(ctx context.Context, aiEntityId int64) (*entity.AIEntity, error) {
	ai, err := s.aiEntityRepo.GetById(ctx, aiEntityId)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "load ai entity failed", err)
	}
	if ai == nil {
		return nil, xerr.New(xerr.KindNotFound, fmt.Sprintf("ai entity %d not found", aiEntityId))
	}
	return ai, nil
}
