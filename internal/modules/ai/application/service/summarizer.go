package service

import (
	"context"
	"fmt"
	"strings"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/infrastructure/llm"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"

	"github.com/cloudwego/eino/schema"
)

// Summarizer 记忆摘要策略，启发式与模型版可互换
type Summarizer interface {
	Summarize(ctx context.Context, ai *entity.AIEntity, messages []chatEntity.Message, speakerName func(m *chatEntity.Message) string) (string, error)
}

// NewSummarizer mode 取 "model" 时走对话模型，其余情况使用启发式摘要
func NewSummarizer(mode string, provider llm.Provider) Summarizer {
	if strings.EqualFold(strings.TrimSpace(mode), "model") && provider != nil {
		return &modelSummarizer{provider: provider}
	}
	return &heuristicSummarizer{}
}

// heuristicSummarizer 不依赖外部调用的保底摘要：参与者 + 首尾话题
type heuristicSummarizer struct{}

func (s *heuristicSummarizer) Summarize(ctx context.Context, ai *entity.AIEntity, messages []chatEntity.Message, speakerName func(m *chatEntity.Message) string) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	names := make([]string, 0, 4)
	seen := make(map[string]bool)
	for i := range messages {
		name := speakerName(&messages[i])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	first := strings.TrimSpace(messages[0].Content)
	if r := []rune(first); len(r) > 80 {
		first = string(r[:80]) + "..."
	}

	return fmt.Sprintf("Conversation between %s (%d messages), starting with: %s",
		strings.Join(names, ", "), len(messages), first), nil
}

// modelSummarizer 把消息窗口交给对话模型生成一段简短摘要
type modelSummarizer struct {
	provider llm.Provider
}

func (s *modelSummarizer) Summarize(ctx context.Context, ai *entity.AIEntity, messages []chatEntity.Message, speakerName func(m *chatEntity.Message) string) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i := range messages {
		b.WriteString(speakerName(&messages[i]))
		b.WriteString(": ")
		b.WriteString(messages[i].Content)
		b.WriteString("\n")
	}

	systemPrompt := "Summarize the following conversation in two or three sentences. " +
		"Keep concrete facts, names and decisions. Respond with the summary only."
	if ai != nil && strings.TrimSpace(ai.DisplayName) != "" {
		systemPrompt += fmt.Sprintf(" Write it from the point of view of %s.", ai.DisplayName)
	}

	msgs := []*schema.Message{schema.UserMessage(b.String())}

	modelName := ""
	temperature := 0.3
	maxTokens := 256
	if ai != nil {
		modelName = ai.Model
	}
	return s.provider.GenerateResponse(ctx, msgs, systemPrompt, modelName, temperature, maxTokens)
}
