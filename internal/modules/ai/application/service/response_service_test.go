package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/domain/entity"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
)

func newTestResponseService(msgRepo *fakeMessageRepo, provider *fakeProvider, cooldown *fakeCooldownRepo, convRepo *fakeConversationRepo, retriever *fakeRetriever) *ResponseService {
	memRepo := &fakeMemoryRepo{}
	ctxSvc := NewContextService(msgRepo, &fakeUserRepo{users: map[int64]string{1: "alice"}}, &fakeAIEntityRepo{}, memRepo, retriever, 4)
	conf := config.Default().MemoryConfig
	return NewResponseService(ctxSvc, provider, nil, msgRepo, convRepo, cooldown, conf)
}

func roomMessage(userId int64, content string) *chatEntity.Message {
	return &chatEntity.Message{
		Id:           1,
		RoomId:       sql.NullInt64{Int64: 5, Valid: true},
		SenderUserId: sql.NullInt64{Int64: userId, Valid: true},
		Content:      content,
	}
}

func convMessage(userId int64, content string) *chatEntity.Message {
	return &chatEntity.Message{
		Id:             1,
		ConversationId: sql.NullInt64{Int64: 5, Valid: true},
		SenderUserId:   sql.NullInt64{Int64: userId, Valid: true},
		Content:        content,
	}
}

func TestShouldAIRespondSelfTriggerSuppressed(t *testing.T) {
	svc := newTestResponseService(&fakeMessageRepo{}, &fakeProvider{}, &fakeCooldownRepo{}, &fakeConversationRepo{}, &fakeRetriever{})
	ai := &entity.AIEntity{Id: 7, Name: "luna", ConversationStrategy: entity.ConversationStrategyEveryMessage}

	own := &chatEntity.Message{
		Id:             2,
		ConversationId: sql.NullInt64{Int64: 5, Valid: true},
		SenderAIId:     sql.NullInt64{Int64: 7, Valid: true},
		Content:        "luna, are you there?",
	}
	if svc.ShouldAIRespond(ai, own) {
		t.Error("ai must never respond to its own message")
	}
}

func TestShouldAIRespondRoomStrategies(t *testing.T) {
	cases := []struct {
		name     string
		strategy string
		content  string
		rand     float64
		prob     float64
		want     bool
	}{
		{"mention_only hit by name", entity.RoomStrategyMentionOnly, "hey Luna what's up", 0, 0, true},
		{"mention_only case insensitive", entity.RoomStrategyMentionOnly, "HEY LUNA", 0, 0, true},
		{"mention_only miss", entity.RoomStrategyMentionOnly, "nothing to see", 0, 0, false},
		{"probabilistic mention bypasses dice", entity.RoomStrategyProbabilistic, "luna?", 0.99, 0.1, true},
		{"probabilistic dice under threshold", entity.RoomStrategyProbabilistic, "plain chatter here", 0.05, 0.1, true},
		{"probabilistic dice over threshold", entity.RoomStrategyProbabilistic, "plain chatter here", 0.5, 0.1, false},
		{"active long message", entity.RoomStrategyActive, "this message has many words", 0, 0, true},
		{"active short message", entity.RoomStrategyActive, "ok", 0, 0, false},
		{"no_response even mentioned", entity.RoomStrategyNoResponse, "luna help", 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestResponseService(&fakeMessageRepo{}, &fakeProvider{}, &fakeCooldownRepo{}, &fakeConversationRepo{}, &fakeRetriever{})
			svc.randFloat = func() float64 { return tc.rand }
			ai := &entity.AIEntity{
				Id: 7, Name: "luna", DisplayName: "Luna",
				RoomStrategy:        tc.strategy,
				ResponseProbability: tc.prob,
			}
			if got := svc.ShouldAIRespond(ai, roomMessage(1, tc.content)); got != tc.want {
				t.Errorf("ShouldAIRespond(%q) = %v, want %v", tc.content, got, tc.want)
			}
		})
	}
}

func TestShouldAIRespondConversationStrategies(t *testing.T) {
	cases := []struct {
		name     string
		strategy string
		content  string
		rand     float64
		prob     float64
		want     bool
	}{
		{"every_message", entity.ConversationStrategyEveryMessage, "anything", 0, 0, true},
		{"on_questions question mark", entity.ConversationStrategyOnQuestions, "really?", 0, 0, true},
		{"on_questions fullwidth mark", entity.ConversationStrategyOnQuestions, "真的吗？", 0, 0, true},
		{"on_questions interrogative word", entity.ConversationStrategyOnQuestions, "how does this work", 0, 0, true},
		{"on_questions statement", entity.ConversationStrategyOnQuestions, "it works fine", 0, 0, false},
		{"smart question", entity.ConversationStrategySmart, "why though", 0.9, 0.1, true},
		{"smart mention", entity.ConversationStrategySmart, "luna take a look", 0.9, 0.1, true},
		{"smart plain statement", entity.ConversationStrategySmart, "plain statement", 0.0, 1.0, false},
		{"smart small talk", entity.ConversationStrategySmart, "we went hiking yesterday", 0.0, 0.9, false},
		{"no_response question", entity.ConversationStrategyNoResponse, "hello?", 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestResponseService(&fakeMessageRepo{}, &fakeProvider{}, &fakeCooldownRepo{}, &fakeConversationRepo{}, &fakeRetriever{})
			svc.randFloat = func() float64 { return tc.rand }
			ai := &entity.AIEntity{
				Id: 7, Name: "luna", DisplayName: "Luna",
				ConversationStrategy: tc.strategy,
				ResponseProbability:  tc.prob,
			}
			if got := svc.ShouldAIRespond(ai, convMessage(1, tc.content)); got != tc.want {
				t.Errorf("ShouldAIRespond(%q) = %v, want %v", tc.content, got, tc.want)
			}
		})
	}
}

func TestGenerateConversationResponsePersistsReply(t *testing.T) {
	base := time.Now()
	trigger := chatEntity.Message{
		Id:             1,
		ConversationId: sql.NullInt64{Int64: 5, Valid: true},
		SenderUserId:   sql.NullInt64{Int64: 1, Valid: true},
		Content:        "tell me about stars",
		SendAt:         base,
	}
	msgRepo := &fakeMessageRepo{newestFirst: []chatEntity.Message{trigger}}
	provider := &fakeProvider{response: "stars are far away"}
	cooldown := &fakeCooldownRepo{}
	convRepo := &fakeConversationRepo{}
	retriever := &fakeRetriever{candidates: []entity.AIMemory{{Id: 1, Summary: "likes astronomy", ImportanceScore: 2.0}}}
	svc := newTestResponseService(msgRepo, provider, cooldown, convRepo, retriever)

	ai := &entity.AIEntity{Id: 7, Name: "luna", DisplayName: "Luna", SystemPrompt: "You are Luna.", Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 512}
	reply, err := svc.GenerateConversationResponse(context.Background(), ai, 5, &trigger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply.Content != "stars are far away" {
		t.Errorf("reply content = %q", reply.Content)
	}
	if !reply.SenderAIId.Valid || reply.SenderAIId.Int64 != 7 {
		t.Error("reply must be attributed to the ai entity")
	}
	if !reply.ReplyToId.Valid || reply.ReplyToId.Int64 != trigger.Id {
		t.Error("reply must reference the trigger message")
	}
	if len(msgRepo.created) != 1 {
		t.Fatalf("created %d messages, want 1", len(msgRepo.created))
	}
	// 记忆摘要附加在系统提示词之后
	if !strings.HasPrefix(provider.lastSystem, "You are Luna.") {
		t.Errorf("system prompt = %q", provider.lastSystem)
	}
	if !strings.Contains(provider.lastSystem, "# Previous Memories:") {
		t.Errorf("system prompt missing memory digest: %q", provider.lastSystem)
	}
	if !strings.Contains(provider.lastSystem, "likes astronomy") {
		t.Errorf("system prompt missing memory body: %q", provider.lastSystem)
	}
	if cooldown.upserts != 1 {
		t.Errorf("cooldown upserts = %d, want 1", cooldown.upserts)
	}
	if len(convRepo.touched) != 1 || convRepo.touched[0] != 5 {
		t.Errorf("conversation touch = %v, want [5]", convRepo.touched)
	}
}

func TestGenerateResponseProviderError(t *testing.T) {
	msgRepo := &fakeMessageRepo{}
	provider := &fakeProvider{err: context.DeadlineExceeded}
	svc := newTestResponseService(msgRepo, provider, &fakeCooldownRepo{}, &fakeConversationRepo{}, &fakeRetriever{})

	ai := &entity.AIEntity{Id: 7, Name: "luna"}
	if _, err := svc.GenerateConversationResponse(context.Background(), ai, 5, nil); err == nil {
		t.Fatal("expected provider error to propagate")
	}
	if len(msgRepo.created) != 0 {
		t.Error("no message should be persisted when generation fails")
	}
}
