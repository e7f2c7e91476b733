package entity

import (
	"database/sql"
	"time"
)

// Room 公开多人聊天房间
type Room struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:varchar(64);not null;uniqueIndex:uniq_room_name"`
	Topic     string    `gorm:"column:topic;type:varchar(255)"`
	Status    int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Room) TableName() string { return "room" }

// Conversation 私聊或小群会话，与 Room 互斥
type Conversation struct {
	Id            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title         string    `gorm:"column:title;type:varchar(128)"`
	IsGroup       bool      `gorm:"column:is_group;not null;default:0"`
	LastMessageAt time.Time `gorm:"column:last_message_at;type:datetime;index:idx_conversation_last_msg"`
	CreatedAt     time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Conversation) TableName() string { return "conversation" }

// ConversationParticipant 会话成员，人类用户或 AI 实体二选一
type ConversationParticipant struct {
	Id             int64         `gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId int64         `gorm:"column:conversation_id;not null;uniqueIndex:uniq_conv_participant"`
	UserId         sql.NullInt64 `gorm:"column:user_id;uniqueIndex:uniq_conv_participant"`
	AIEntityId     sql.NullInt64 `gorm:"column:ai_entity_id;uniqueIndex:uniq_conv_participant;index:idx_conv_participant_ai"`
	JoinedAt       time.Time     `gorm:"column:joined_at;type:datetime;not null"`
}

func (ConversationParticipant) TableName() string { return "conversation_participant" }

// Message 聊天消息。路由不变量：room_id 与 conversation_id 恰好一个非空；
// 发送者为人类用户或 AI 实体恰好其一。发送者注销后消息保留，引用置空。
type Message struct {
	Id             int64         `gorm:"column:id;primaryKey;autoIncrement"`
	RoomId         sql.NullInt64 `gorm:"column:room_id;index:idx_message_room"`
	ConversationId sql.NullInt64 `gorm:"column:conversation_id;index:idx_message_conversation"`
	SenderUserId   sql.NullInt64 `gorm:"column:sender_user_id;index:idx_message_sender_user"`
	SenderAIId     sql.NullInt64 `gorm:"column:sender_ai_id;index:idx_message_sender_ai"`
	Content        string        `gorm:"column:content;type:mediumtext;not null"`
	Language       string        `gorm:"column:language;type:varchar(10)"`
	ReplyToId      sql.NullInt64 `gorm:"column:reply_to_id"`
	SendAt         time.Time     `gorm:"column:send_at;type:datetime(3);not null;index:idx_message_send_at"`
	CreatedAt      time.Time     `gorm:"column:created_at;type:datetime;not null"`
}

func (Message) TableName() string { return "message" }

// IsFromAI 判断消息是否由指定 AI 实体发出
func (m *Message) IsFromAI(aiEntityId int64) bool {
	return m.SenderAIId.Valid && m.SenderAIId.Int64 == aiEntityId
}

// MessageTranslation 消息译文，每 (消息, 目标语言) 一行
type MessageTranslation struct {
	Id         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MessageId  int64     `gorm:"column:message_id;not null;uniqueIndex:uniq_msg_translation"`
	TargetLang string    `gorm:"column:target_lang;type:varchar(10);not null;uniqueIndex:uniq_msg_translation"`
	Content    string    `gorm:"column:content;type:mediumtext;not null"`
	Provider   string    `gorm:"column:provider;type:varchar(30)"`
	CreatedAt  time.Time `gorm:"column:created_at;type:datetime;not null"`
}

func (MessageTranslation) TableName() string { return "message_translation" }
