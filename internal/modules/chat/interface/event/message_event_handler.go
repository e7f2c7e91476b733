package event

import (
	"context"
	"encoding/json"

	"RoomLink/internal/modules/ai/infrastructure/mq"
	"RoomLink/internal/modules/chat/application/service"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// MessageEvent 上游网关投递的聊天消息事件
type MessageEvent struct {
	RoomId         *int64 `json:"room_id,omitempty"`
	ConversationId *int64 `json:"conversation_id,omitempty"`
	SenderUserId   *int64 `json:"sender_user_id,omitempty"`
	SenderAIId     *int64 `json:"sender_ai_id,omitempty"`
	Content        string `json:"content"`
	Language       string `json:"language,omitempty"`
	ReplyToId      *int64 `json:"reply_to_id,omitempty"`
}

// MessageEventHandler 消费聊天消息事件：落库并触发 AI 响应任务入队。
// 格式错误与校验失败直接丢弃提交，基础设施错误返回以触发重投。
type MessageEventHandler struct {
	messageService *service.MessageService
}

func NewMessageEventHandler(messageService *service.MessageService) *MessageEventHandler {
	return &MessageEventHandler{messageService: messageService}
}

var _ mq.Handler = (*MessageEventHandler)(nil)

func (h *MessageEventHandler) Handle(ctx context.Context, msg mq.Message) error {
	var ev MessageEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		zlog.Warn("discard malformed message event", zap.Error(err))
		return nil
	}

	_, err := h.messageService.SendMessage(ctx, &service.SendMessageRequest{
		RoomId:         ev.RoomId,
		ConversationId: ev.ConversationId,
		SenderUserId:   ev.SenderUserId,
		SenderAIId:     ev.SenderAIId,
		Content:        ev.Content,
		Language:       ev.Language,
		ReplyToId:      ev.ReplyToId,
	})
	if err != nil {
		if xerr.IsKind(err, xerr.KindValidation) {
			zlog.Warn("discard invalid message event", zap.Error(err))
			return nil
		}
		zlog.Error("handle message event failed", zap.Error(err))
		return err
	}
	return nil
}
