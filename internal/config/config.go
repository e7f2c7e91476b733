package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	VectorDim      int    `toml:"vectorDim"`
	MetricType     string `toml:"metricType"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	ResponseTopic   string   `toml:"responseTopic"`
	MessageTopic    string   `toml:"messageTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type AIEmbeddingConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	Dimensions      int    `toml:"dimensions"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

// AISummarizerConfig 记忆摘要器选择："heuristic" 或 "model"
type AISummarizerConfig struct {
	Mode string `toml:"mode"`
}

type AIConfig struct {
	Embedding  AIEmbeddingConfig  `toml:"embedding"`
	ChatModel  AIChatModelConfig  `toml:"chatModel"`
	Summarizer AISummarizerConfig `toml:"summarizer"`
	// Retriever 记忆候选检索策略："keyword"（默认）或 "vector"
	Retriever string `toml:"retriever"`
}

// MemoryConfig 记忆管线参数
type MemoryConfig struct {
	MaxContextMessages int    `toml:"maxContextMessages"` // 上下文最多取最近多少条消息
	MaxMemoryEntries   int    `toml:"maxMemoryEntries"`   // 记忆摘要最多包含多少条
	OverfetchFactor    int    `toml:"overfetchFactor"`    // 候选过采样倍数
	BuilderWindow      int    `toml:"builderWindow"`      // 摘要记忆取最近多少条消息
	ChunkSize          int    `toml:"chunkSize"`
	ChunkOverlap       int    `toml:"chunkOverlap"`
	MaxKeywords        int    `toml:"maxKeywords"`
	IdleMinutes        int    `toml:"idleMinutes"` // 会话空闲多久后归档为记忆
	CronSpec           string `toml:"cronSpec"`
	ActiveMinWords     int    `toml:"activeMinWords"` // room_active 策略的最短消息词数
}

// WorkerConfig 后台响应任务参数
type WorkerConfig struct {
	Concurrency       int `toml:"concurrency"`       // 并发上限
	JobTimeoutSeconds int `toml:"jobTimeoutSeconds"` // 单任务超时
	MaxAttempts       int `toml:"maxAttempts"`
	OutboxBatchSize   int `toml:"outboxBatchSize"`
	OutboxIntervalMs  int `toml:"outboxIntervalMs"`
}

type TranslationConfig struct {
	Enabled         bool     `toml:"enabled"`
	TargetLanguages []string `toml:"targetLanguages"`
	CacheTTLSeconds int      `toml:"cacheTTLSeconds"`
}

// AISeedConfig 启动时声明式创建/对齐的 AI 实体。
// 幂等：同名实体已存在时只补充缺失的人格记忆，不重复创建。
type AISeedConfig struct {
	Name                 string   `toml:"name"`
	DisplayName          string   `toml:"displayName"`
	SystemPrompt         string   `toml:"systemPrompt"`
	Model                string   `toml:"model"`
	Temperature          float64  `toml:"temperature"`
	MaxTokens            int      `toml:"maxTokens"`
	RoomStrategy         string   `toml:"roomStrategy"`
	ConversationStrategy string   `toml:"conversationStrategy"`
	ResponseProbability  float64  `toml:"responseProbability"`
	Online               bool     `toml:"online"`
	RoomId               int64    `toml:"roomId"`
	Personality          []string `toml:"personality"`
}

type Config struct {
	MainConfig        `toml:"mainConfig"`
	MysqlConfig       `toml:"mysqlConfig"`
	LogConfig         `toml:"logConfig"`
	MilvusConfig      `toml:"milvusConfig"`
	KafkaConfig       `toml:"kafkaConfig"`
	RedisConfig       `toml:"redisConfig"`
	AIConfig          `toml:"aiConfig"`
	MemoryConfig      `toml:"memoryConfig"`
	WorkerConfig      `toml:"workerConfig"`
	TranslationConfig `toml:"translationConfig"`
	AIEntitySeeds     []AISeedConfig `toml:"aiEntitySeed"`
}

// Load 从 toml 文件加载配置并填默认值。
// 配置对象由 main 显式传给各构造函数，核心管线内部不做全局读取。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config_local.toml"
	}
	conf := new(Config)
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	conf.applyDefaults()
	return conf, nil
}

// Default 返回带默认值的配置（测试与本地快速启动用）
func Default() *Config {
	conf := new(Config)
	conf.applyDefaults()
	return conf
}

func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "RoomLink"
	}
	if c.MemoryConfig.MaxContextMessages <= 0 {
		c.MemoryConfig.MaxContextMessages = 50
	}
	if c.MemoryConfig.MaxMemoryEntries <= 0 {
		c.MemoryConfig.MaxMemoryEntries = 10
	}
	if c.MemoryConfig.OverfetchFactor <= 0 {
		c.MemoryConfig.OverfetchFactor = 4
	}
	if c.MemoryConfig.BuilderWindow <= 0 {
		c.MemoryConfig.BuilderWindow = 20
	}
	if c.MemoryConfig.ChunkSize <= 0 {
		c.MemoryConfig.ChunkSize = 500
	}
	if c.MemoryConfig.ChunkOverlap < 0 {
		c.MemoryConfig.ChunkOverlap = 50
	}
	if c.MemoryConfig.MaxKeywords <= 0 {
		c.MemoryConfig.MaxKeywords = 10
	}
	if c.MemoryConfig.IdleMinutes <= 0 {
		c.MemoryConfig.IdleMinutes = 30
	}
	if c.MemoryConfig.CronSpec == "" {
		c.MemoryConfig.CronSpec = "*/10 * * * *"
	}
	if c.MemoryConfig.ActiveMinWords <= 0 {
		c.MemoryConfig.ActiveMinWords = 3
	}
	if c.WorkerConfig.Concurrency <= 0 {
		c.WorkerConfig.Concurrency = 10
	}
	if c.WorkerConfig.JobTimeoutSeconds <= 0 {
		c.WorkerConfig.JobTimeoutSeconds = 300
	}
	if c.WorkerConfig.MaxAttempts <= 0 {
		c.WorkerConfig.MaxAttempts = 3
	}
	if c.WorkerConfig.OutboxBatchSize <= 0 {
		c.WorkerConfig.OutboxBatchSize = 200
	}
	if c.WorkerConfig.OutboxIntervalMs <= 0 {
		c.WorkerConfig.OutboxIntervalMs = 500
	}
	if c.TranslationConfig.CacheTTLSeconds <= 0 {
		c.TranslationConfig.CacheTTLSeconds = 3600
	}
	if c.KafkaConfig.ResponseTopic == "" {
		c.KafkaConfig.ResponseTopic = "ai-response-jobs"
	}
	if c.KafkaConfig.MessageTopic == "" {
		c.KafkaConfig.MessageTopic = "chat-message-events"
	}
	if c.KafkaConfig.ConsumerGroupID == "" {
		c.KafkaConfig.ConsumerGroupID = "roomlink-ai"
	}
	if c.AIConfig.Retriever == "" {
		c.AIConfig.Retriever = "keyword"
	}
	if c.AIConfig.Summarizer.Mode == "" {
		c.AIConfig.Summarizer.Mode = "heuristic"
	}
}
