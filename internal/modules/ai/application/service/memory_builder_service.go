package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/internal/modules/ai/infrastructure/chunking"
	"RoomLink/internal/modules/ai/infrastructure/keywords"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	chatRepository "RoomLink/internal/modules/chat/domain/repository"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryBuilderService 把会话消息沉淀为记忆：
// 短期路径生成一条 conversation 摘要记忆；
// 长期路径把完整转写切块、逐块抽关键词并向量化，写入 long_term 记忆与向量库。
type MemoryBuilderService struct {
	contextService *ContextService
	messageRepo    chatRepository.MessageRepository
	aiEntityRepo   repository.AIEntityRepository
	memoryRepo     repository.AIMemoryRepository
	summarizer     Summarizer
	extractor      *keywords.YakeExtractor
	chunker        *chunking.SimpleChunker
	embedder       einoEmbedding.Embedder
	vectorStore    repository.VectorStore
	memoryConf     config.MemoryConfig
}

func NewMemoryBuilderService(
	contextService *ContextService,
	messageRepo chatRepository.MessageRepository,
	aiEntityRepo repository.AIEntityRepository,
	memoryRepo repository.AIMemoryRepository,
	summarizer Summarizer,
	extractor *keywords.YakeExtractor,
	chunker *chunking.SimpleChunker,
	embedder einoEmbedding.Embedder,
	vectorStore repository.VectorStore,
	memoryConf config.MemoryConfig,
) *MemoryBuilderService {
	return &MemoryBuilderService{
		contextService: contextService,
		messageRepo:    messageRepo,
		aiEntityRepo:   aiEntityRepo,
		memoryRepo:     memoryRepo,
		summarizer:     summarizer,
		extractor:      extractor,
		chunker:        chunker,
		embedder:       embedder,
		vectorStore:    vectorStore,
		memoryConf:     memoryConf,
	}
}

// conversationMemoryPayload 写入 content_json 的结构化负载
type conversationMemoryPayload struct {
	Participants  []string `json:"participants"`
	Topic         string   `json:"topic"`
	KeyFacts      []string `json:"key_facts"`
	Context       string   `json:"context"`
	MessageCount  int      `json:"message_count"`
	LastMessageId int64    `json:"last_message_id"`
}

// CreateConversationMemory 对会话最近一个窗口的消息生成一条摘要记忆。
// 实体不存在或窗口为空是硬失败；摘要生成失败降级为占位摘要，不阻断沉淀。
func (s *MemoryBuilderService) CreateConversationMemory(ctx context.Context, aiEntityId int64, conversationId int64) (*entity.AIMemory, error) {
	ai, err := s.aiEntityRepo.GetById(ctx, aiEntityId)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "load ai entity failed", err)
	}
	if ai == nil {
		return nil, xerr.New(xerr.KindNotFound, fmt.Sprintf("ai entity %d not found", aiEntityId))
	}

	window := s.memoryConf.BuilderWindow
	if window <= 0 {
		window = 20
	}
	newestFirst, _, err := s.messageRepo.ListConversationMessages(ctx, conversationId, 1, window)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindRetrieval, "fetch conversation window failed", err)
	}
	if len(newestFirst) == 0 {
		return nil, xerr.New(xerr.KindValidation, fmt.Sprintf("conversation %d has no messages to memorize", conversationId))
	}

	messages := reverseMessages(newestFirst)
	labels, err := s.contextService.resolveSpeakerLabels(ctx, messages, ai)
	if err != nil {
		return nil, err
	}
	speakerName := func(m *chatEntity.Message) string { return labels[m.Id] }

	summary, err := s.summarizer.Summarize(ctx, ai, messages, speakerName)
	if err != nil || summary == "" {
		if err != nil {
			zlog.Warn("summarize degraded to placeholder",
				zap.Int64("ai_entity_id", aiEntityId),
				zap.Int64("conversation_id", conversationId),
				zap.Error(err))
		}
		summary = fmt.Sprintf("Conversation with %d messages (summary unavailable)", len(messages))
	}

	payload := buildConversationPayload(messages, labels)
	contentJson, err := json.Marshal(payload)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "marshal memory payload failed", err)
	}

	kws := s.extractor.Extract(summary, s.memoryConf.MaxKeywords)
	keywordsJson, err := json.Marshal(kws)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "marshal keywords failed", err)
	}

	memory := &entity.AIMemory{
		AIEntityId:      aiEntityId,
		ConversationId:  sql.NullInt64{Int64: conversationId, Valid: true},
		MemoryType:      entity.MemoryTypeConversation,
		Summary:         summary,
		ContentJson:     string(contentJson),
		KeywordsJson:    string(keywordsJson),
		ImportanceScore: conversationImportance(len(messages)),
	}
	if err := s.memoryRepo.Create(ctx, memory); err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "persist conversation memory failed", err)
	}
	zlog.Info("conversation memory created",
		zap.Int64("ai_entity_id", aiEntityId),
		zap.Int64("conversation_id", conversationId),
		zap.Int64("memory_id", memory.Id),
		zap.Int("message_count", len(messages)))
	return memory, nil
}

// ArchiveLongTermMemories 把会话完整转写切块后逐块沉淀为 long_term 记忆并写入向量库。
// 向量化是该路径存在的意义，任何一块 embedding 失败即整体失败，不留半成品。
func (s *MemoryBuilderService) ArchiveLongTermMemories(ctx context.Context, aiEntityId int64, conversationId int64) ([]entity.AIMemory, error) {
	ai, err := s.aiEntityRepo.GetById(ctx, aiEntityId)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "load ai entity failed", err)
	}
	if ai == nil {
		return nil, xerr.New(xerr.KindNotFound, fmt.Sprintf("ai entity %d not found", aiEntityId))
	}
	if s.embedder == nil || s.vectorStore == nil {
		return nil, xerr.New(xerr.KindValidation, "long term archival requires embedder and vector store")
	}

	// 归档导出整段会话，不能只取上下文窗口那一截
	newestFirst, err := s.fetchFullTranscript(ctx, conversationId)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindRetrieval, "fetch conversation transcript failed", err)
	}
	if len(newestFirst) == 0 {
		return nil, nil
	}

	messages := reverseMessages(newestFirst)
	labels, err := s.contextService.resolveSpeakerLabels(ctx, messages, ai)
	if err != nil {
		return nil, err
	}

	transcript := renderTranscript(messages, labels)
	chunks, err := s.chunker.Chunk(ctx, transcript)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindInternal, "chunk transcript failed", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedStrings(ctx, chunks)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindProvider, "embed transcript chunks failed", err)
	}
	if len(vectors) != len(chunks) {
		return nil, xerr.New(xerr.KindProvider, fmt.Sprintf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors)))
	}

	lastMessageId := messages[len(messages)-1].Id
	created := make([]entity.AIMemory, 0, len(chunks))
	items := make([]repository.VectorUpsertItem, 0, len(chunks))
	for i, chunk := range chunks {
		kws := s.extractor.Extract(chunk, s.memoryConf.MaxKeywords)
		keywordsJson, mErr := json.Marshal(kws)
		if mErr != nil {
			return nil, xerr.Wrap(xerr.KindInternal, "marshal chunk keywords failed", mErr)
		}
		metadata := map[string]any{
			"conversation_id": conversationId,
			"chunk_index":     i,
			"chunk_total":     len(chunks),
			"last_message_id": lastMessageId,
		}
		metadataJson, mErr := json.Marshal(metadata)
		if mErr != nil {
			return nil, xerr.Wrap(xerr.KindInternal, "marshal chunk metadata failed", mErr)
		}

		vectorId := uuid.NewString()
		memory := &entity.AIMemory{
			AIEntityId:      aiEntityId,
			ConversationId:  sql.NullInt64{Int64: conversationId, Valid: true},
			MemoryType:      entity.MemoryTypeLongTerm,
			Summary:         truncateRunes(chunk, 255),
			ContentJson:     mustJSONString(chunk),
			KeywordsJson:    string(keywordsJson),
			ImportanceScore: 1.0,
			VectorId:        vectorId,
			MetadataJson:    string(metadataJson),
		}
		if err := s.memoryRepo.Create(ctx, memory); err != nil {
			return nil, xerr.Wrap(xerr.KindInternal, "persist long term memory failed", err)
		}
		created = append(created, *memory)

		items = append(items, repository.VectorUpsertItem{
			ID:           vectorId,
			Vector:       float64sTo32(vectors[i]),
			AIEntityID:   aiEntityId,
			MemoryID:     memory.Id,
			MemoryType:   entity.MemoryTypeLongTerm,
			Content:      chunk,
			MetadataJSON: string(metadataJson),
		})
	}

	if _, err := s.vectorStore.Upsert(ctx, items); err != nil {
		return nil, xerr.Wrap(xerr.KindProvider, "upsert memory vectors failed", err)
	}
	zlog.Info("long term memories archived",
		zap.Int64("ai_entity_id", aiEntityId),
		zap.Int64("conversation_id", conversationId),
		zap.Int("chunk_count", len(chunks)))
	return created, nil
}

const transcriptPageSize = 500

// fetchFullTranscript 分页拉取会话全部消息，返回最新在前的完整列表
func (s *MemoryBuilderService) fetchFullTranscript(ctx context.Context, conversationId int64) ([]chatEntity.Message, error) {
	var all []chatEntity.Message
	for page := 1; ; page++ {
		batch, total, err := s.messageRepo.ListConversationMessages(ctx, conversationId, page, transcriptPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < transcriptPageSize || int64(len(all)) >= total {
			return all, nil
		}
	}
}

// conversationImportance 消息越多的窗口重要性越高，封顶 2.0
func conversationImportance(messageCount int) float64 {
	bonus := float64(messageCount) / 20.0
	if bonus > 1.0 {
		bonus = 1.0
	}
	return 1.0 + bonus
}

func buildConversationPayload(messages []chatEntity.Message, labels map[int64]string) conversationMemoryPayload {
	seen := make(map[string]bool)
	participants := make([]string, 0, 4)
	topic := ""
	for i := range messages {
		name := labels[messages[i].Id]
		if name != "" && !seen[name] {
			seen[name] = true
			participants = append(participants, name)
		}
		if topic == "" && messages[i].SenderUserId.Valid {
			topic = truncateRunes(messages[i].Content, 100)
		}
	}
	sort.Strings(participants)
	if topic == "" {
		topic = truncateRunes(messages[0].Content, 100)
	}
	return conversationMemoryPayload{
		Participants:  participants,
		Topic:         topic,
		KeyFacts:      []string{},
		Context:       fmt.Sprintf("Conversation window ending at %s", messages[len(messages)-1].SendAt.Format(time.RFC3339)),
		MessageCount:  len(messages),
		LastMessageId: messages[len(messages)-1].Id,
	}
}

func renderTranscript(messages []chatEntity.Message, labels map[int64]string) string {
	var b []byte
	for i := range messages {
		b = append(b, labels[messages[i].Id]...)
		b = append(b, ": "...)
		b = append(b, messages[i].Content...)
		b = append(b, '\n')
	}
	return string(b)
}

func reverseMessages(newestFirst []chatEntity.Message) []chatEntity.Message {
	out := make([]chatEntity.Message, len(newestFirst))
	for i := range newestFirst {
		out[len(newestFirst)-1-i] = newestFirst[i]
	}
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

func float64sTo32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func mustJSONString(s string) string {
	b, err := json.Marshal(map[string]string{"text": s})
	if err != nil {
		return "{}"
	}
	return string(b)
}
