package entity

import (
	"database/sql"
	"time"
)

// AI 实体在线状态
const (
	AIStatusOffline int8 = 0
	AIStatusOnline  int8 = 1
)

// 房间场景响应策略
const (
	RoomStrategyMentionOnly   = "mention_only"
	RoomStrategyProbabilistic = "probabilistic"
	RoomStrategyActive        = "active"
	RoomStrategyNoResponse    = "no_response"
)

// 会话场景响应策略
const (
	ConversationStrategyEveryMessage = "every_message"
	ConversationStrategyOnQuestions  = "on_questions"
	ConversationStrategySmart        = "smart"
	ConversationStrategyNoResponse   = "no_response"
)

// 记忆类型
const (
	MemoryTypeConversation = "conversation"
	MemoryTypeLongTerm     = "long_term"
	MemoryTypePersonality  = "personality"
)

// AIEntity AI 聊天参与者。删除即置为离线，不做物理删除。
type AIEntity struct {
	Id                   int64         `gorm:"column:id;primaryKey;autoIncrement"`
	Name                 string        `gorm:"column:name;type:varchar(64);not null;uniqueIndex:uniq_ai_entity_name"`
	DisplayName          string        `gorm:"column:display_name;type:varchar(64);not null"`
	SystemPrompt         string        `gorm:"column:system_prompt;type:text"`
	Model                string        `gorm:"column:model;type:varchar(64);not null"`
	Temperature          float64       `gorm:"column:temperature;type:double;not null;default:0.7"`
	MaxTokens            int           `gorm:"column:max_tokens;type:int;not null;default:1024"`
	Status               int8          `gorm:"column:status;type:tinyint;not null;default:1;index:idx_ai_entity_status"`
	CurrentRoomId        sql.NullInt64 `gorm:"column:current_room_id;index:idx_ai_entity_room"`
	RoomStrategy         string        `gorm:"column:room_strategy;type:varchar(30);not null;default:'mention_only'"`
	ConversationStrategy string        `gorm:"column:conversation_strategy;type:varchar(30);not null;default:'every_message'"`
	ResponseProbability  float64       `gorm:"column:response_probability;type:double;not null;default:0.3"`
	CreatedAt            time.Time     `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt            time.Time     `gorm:"column:updated_at;type:datetime;not null"`
}

func (AIEntity) TableName() string { return "ai_entity" }

func (e *AIEntity) IsOnline() bool { return e.Status == AIStatusOnline }

// InRoom 判断实体当前是否在指定房间
func (e *AIEntity) InRoom(roomId int64) bool {
	return e.CurrentRoomId.Valid && e.CurrentRoomId.Int64 == roomId
}

// AIMemory AI 记忆。room_id 与 conversation_id 互斥，均为空表示全局人格记忆。
// importance_score 与 access_count 只增不减：创建路径赋初值，检索选中路径累加。
type AIMemory struct {
	Id              int64         `gorm:"column:id;primaryKey;autoIncrement"`
	AIEntityId      int64         `gorm:"column:ai_entity_id;not null;index:idx_ai_memory_entity"`
	RoomId          sql.NullInt64 `gorm:"column:room_id;index:idx_ai_memory_room"`
	ConversationId  sql.NullInt64 `gorm:"column:conversation_id;index:idx_ai_memory_conversation"`
	MemoryType      string        `gorm:"column:memory_type;type:varchar(20);not null;default:'conversation'"`
	Summary         string        `gorm:"column:summary;type:text;not null"`
	ContentJson     string        `gorm:"column:content_json;type:json"`
	KeywordsJson    string        `gorm:"column:keywords_json;type:json"`
	ImportanceScore float64       `gorm:"column:importance_score;type:double;not null;default:1;index:idx_ai_memory_importance"`
	VectorId        string        `gorm:"column:vector_id;type:varchar(128)"`
	AccessCount     int           `gorm:"column:access_count;type:int;not null;default:0"`
	MetadataJson    string        `gorm:"column:metadata_json;type:json"`
	LastAccessedAt  sql.NullTime  `gorm:"column:last_accessed_at;type:datetime"`
	CreatedAt       time.Time     `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt       time.Time     `gorm:"column:updated_at;type:datetime;not null"`
}

func (AIMemory) TableName() string { return "ai_memory" }

// AICooldown 每个 (AI 实体, 房间或会话) 一行，记录最近一次响应时间。
// context_key 承担唯一约束，保证并发触发下的原子 upsert。
type AICooldown struct {
	Id             int64         `gorm:"column:id;primaryKey;autoIncrement"`
	AIEntityId     int64         `gorm:"column:ai_entity_id;not null;index:idx_ai_cooldown_entity"`
	RoomId         sql.NullInt64 `gorm:"column:room_id"`
	ConversationId sql.NullInt64 `gorm:"column:conversation_id"`
	ContextKey     string        `gorm:"column:context_key;type:varchar(64);not null;uniqueIndex:uniq_ai_cooldown_ctx"`
	LastResponseAt time.Time     `gorm:"column:last_response_at;type:datetime;not null"`
	CreatedAt      time.Time     `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;type:datetime;not null"`
}

func (AICooldown) TableName() string { return "ai_cooldown" }

// 响应任务状态
const (
	JobStatusPending    int8 = 0
	JobStatusPublished  int8 = 1
	JobStatusProcessing int8 = 2
	JobStatusDone       int8 = 3
	JobStatusSkipped    int8 = 4
	JobStatusFailed     int8 = 5
)

// AIResponseJob 按消息入队的响应任务，走 outbox 中继投递到 Kafka。
type AIResponseJob struct {
	Id             int64         `gorm:"column:id;primaryKey;autoIncrement"`
	AIEntityId     sql.NullInt64 `gorm:"column:ai_entity_id;index:idx_ai_job_entity"`
	RoomId         sql.NullInt64 `gorm:"column:room_id"`
	ConversationId sql.NullInt64 `gorm:"column:conversation_id"`
	MessageId      int64         `gorm:"column:message_id;not null"`
	DedupKey       string        `gorm:"column:dedup_key;type:varchar(160);not null;uniqueIndex:uniq_ai_job_dedup"`
	Status         int8          `gorm:"column:status;type:tinyint;not null;default:0;index:idx_ai_job_status"`
	RetryCount     int           `gorm:"column:retry_count;type:int;not null;default:0"`
	PublishRetries int           `gorm:"column:publish_retries;type:int;not null;default:0"`
	NextRetryAt    sql.NullTime  `gorm:"column:next_retry_at;type:datetime;index:idx_ai_job_next_retry"`
	SkipReason     string        `gorm:"column:skip_reason;type:varchar(64)"`
	ErrorMsg       string        `gorm:"column:error_msg;type:varchar(255)"`
	ResultMsgId    sql.NullInt64 `gorm:"column:result_msg_id"`
	CreatedAt      time.Time     `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;type:datetime;not null"`
}

func (AIResponseJob) TableName() string { return "ai_response_job" }
