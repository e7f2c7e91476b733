package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/chat/domain/entity"
	"RoomLink/internal/modules/chat/domain/repository"
	"RoomLink/pkg/redis"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// Translator 翻译提供方抽象，返回目标语言文本
type Translator interface {
	Translate(ctx context.Context, text string, sourceLang string, targetLang string) (string, error)
	Name() string
}

// TranslationService 消息翻译扇出：对每条消息按配置的目标语言逐一翻译并落库。
// 单个语言失败只影响该语言，不影响其他语言与消息本身。
// 命中 redis 缓存时跳过翻译调用。
type TranslationService struct {
	translator      Translator
	translationRepo repository.TranslationRepository
	conf            config.TranslationConfig
}

func NewTranslationService(translator Translator, translationRepo repository.TranslationRepository, conf config.TranslationConfig) *TranslationService {
	return &TranslationService{
		translator:      translator,
		translationRepo: translationRepo,
		conf:            conf,
	}
}

// FanOut 对消息做多语言翻译，整体 best-effort
func (s *TranslationService) FanOut(ctx context.Context, msg *entity.Message) {
	if !s.conf.Enabled || s.translator == nil || msg == nil || msg.Content == "" {
		return
	}
	for _, lang := range s.conf.TargetLanguages {
		lang = strings.TrimSpace(lang)
		if lang == "" || strings.EqualFold(lang, msg.Language) {
			continue
		}
		if err := s.translateOne(ctx, msg, lang); err != nil {
			zlog.Warn("translate message failed",
				zap.Int64("message_id", msg.Id), zap.String("target_lang", lang), zap.Error(err))
		}
	}
}

func (s *TranslationService) translateOne(ctx context.Context, msg *entity.Message, targetLang string) error {
	if existing, err := s.translationRepo.GetByMessageAndLang(ctx, msg.Id, targetLang); err == nil && existing != nil {
		return nil
	}

	cacheKey := fmt.Sprintf("translation:%s:%s", targetLang, hashText(msg.Content))
	var translated string
	if redis.IsConnected() {
		if cached, err := redis.Get(ctx, cacheKey); err == nil && cached != "" {
			translated = cached
		}
	}

	if translated == "" {
		var err error
		translated, err = s.translator.Translate(ctx, msg.Content, msg.Language, targetLang)
		if err != nil {
			return err
		}
		if redis.IsConnected() && translated != "" {
			ttl := time.Duration(s.conf.CacheTTLSeconds) * time.Second
			if ttl <= 0 {
				ttl = time.Hour
			}
			if err := redis.Set(ctx, cacheKey, translated, ttl); err != nil {
				zlog.Debug("cache translation failed", zap.String("key", cacheKey), zap.Error(err))
			}
		}
	}
	if translated == "" {
		return nil
	}

	return s.translationRepo.Create(ctx, &entity.MessageTranslation{
		MessageId:  msg.Id,
		TargetLang: targetLang,
		Content:    translated,
		Provider:   s.translator.Name(),
	})
}

// hashText FNV-1a，缓存键不需要抗碰撞强度
func hashText(s string) string {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return fmt.Sprintf("%x", h)
}
