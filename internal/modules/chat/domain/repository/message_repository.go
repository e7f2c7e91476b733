package repository

import (
	"context"
	"time"

	"RoomLink/internal/modules/chat/domain/entity"
)

type MessageRepository interface {
	// ListConversationMessages 按发送时间倒序分页返回会话消息（最新在前）
	ListConversationMessages(ctx context.Context, conversationId int64, page int, pageSize int) ([]entity.Message, int64, error)
	// ListRoomMessages 同上，作用于房间公共消息流
	ListRoomMessages(ctx context.Context, roomId int64, page int, pageSize int) ([]entity.Message, int64, error)
	Create(ctx context.Context, message *entity.Message) error
	GetById(ctx context.Context, id int64) (*entity.Message, error)
	// Delete 物理删除，返回是否确有删除（竞态撤回路径使用）
	Delete(ctx context.Context, id int64) (bool, error)
	// ListConversationsIdleSince 返回最后一条消息早于 before 的会话 id（记忆归档调度用）
	ListConversationsIdleSince(ctx context.Context, before time.Time, limit int) ([]int64, error)
}
