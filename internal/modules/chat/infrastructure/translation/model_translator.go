package translation

import (
	"context"
	"fmt"
	"strings"

	"RoomLink/internal/modules/ai/infrastructure/llm"
	"RoomLink/pkg/xerr"

	"github.com/cloudwego/eino/schema"
)

// ModelTranslator 用对话模型做翻译，温度压到 0 保持忠实
type ModelTranslator struct {
	provider  llm.Provider
	modelName string
}

func NewModelTranslator(provider llm.Provider, modelName string) *ModelTranslator {
	return &ModelTranslator{provider: provider, modelName: modelName}
}

func (t *ModelTranslator) Name() string { return "model" }

func (t *ModelTranslator) Translate(ctx context.Context, text string, sourceLang string, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	systemPrompt := fmt.Sprintf(
		"Translate the user message into %s. Preserve tone and meaning. Respond with the translation only.",
		targetLang)
	if sourceLang != "" {
		systemPrompt = fmt.Sprintf(
			"Translate the user message from %s into %s. Preserve tone and meaning. Respond with the translation only.",
			sourceLang, targetLang)
	}

	out, err := t.provider.GenerateResponse(ctx, []*schema.Message{schema.UserMessage(text)}, systemPrompt, t.modelName, 0, 1024)
	if err != nil {
		return "", xerr.Wrap(xerr.KindProvider, "translate via chat model failed", err)
	}
	return strings.TrimSpace(out), nil
}
