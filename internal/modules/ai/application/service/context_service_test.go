package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	"RoomLink/pkg/xerr"
)

func userMsg(id int64, userId int64, content string, at time.Time) chatEntity.Message {
	return chatEntity.Message{
		Id:           id,
		SenderUserId: sql.NullInt64{Int64: userId, Valid: true},
		Content:      content,
		SendAt:       at,
	}
}

func aiMsg(id int64, aiId int64, content string, at time.Time) chatEntity.Message {
	return chatEntity.Message{
		Id:         id,
		SenderAIId: sql.NullInt64{Int64: aiId, Valid: true},
		Content:    content,
		SendAt:     at,
	}
}

func newTestContextService(msgRepo *fakeMessageRepo, userRepo *fakeUserRepo, aiRepo *fakeAIEntityRepo, memRepo *fakeMemoryRepo, retriever *fakeRetriever) *ContextService {
	return NewContextService(msgRepo, userRepo, aiRepo, memRepo, retriever, 4)
}

func TestBuildConversationContextChronologicalOrder(t *testing.T) {
	base := time.Now()
	// 仓储按最新在前返回
	msgRepo := &fakeMessageRepo{newestFirst: []chatEntity.Message{
		userMsg(3, 1, "third", base.Add(2*time.Second)),
		userMsg(2, 1, "second", base.Add(time.Second)),
		userMsg(1, 1, "first", base),
	}}
	userRepo := &fakeUserRepo{users: map[int64]string{1: "alice"}}
	svc := newTestContextService(msgRepo, userRepo, &fakeAIEntityRepo{}, &fakeMemoryRepo{}, &fakeRetriever{})

	ai := &entity.AIEntity{Id: 7, Name: "luna", DisplayName: "Luna"}
	out, err := svc.BuildConversationContext(context.Background(), 10, ai, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	wantOrder := []string{"alice: first", "alice: second", "alice: third"}
	for i, want := range wantOrder {
		if out[i].Content != want {
			t.Errorf("message %d = %q, want %q", i, out[i].Content, want)
		}
	}
}

func TestBuildContextUniformUserRole(t *testing.T) {
	base := time.Now()
	msgRepo := &fakeMessageRepo{newestFirst: []chatEntity.Message{
		aiMsg(2, 7, "hello there", base.Add(time.Second)),
		userMsg(1, 1, "hi", base),
	}}
	userRepo := &fakeUserRepo{users: map[int64]string{1: "alice"}}
	svc := newTestContextService(msgRepo, userRepo, &fakeAIEntityRepo{}, &fakeMemoryRepo{}, &fakeRetriever{})

	ai := &entity.AIEntity{Id: 7, Name: "luna", DisplayName: "Luna"}
	out, err := svc.BuildConversationContext(context.Background(), 10, ai, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, m := range out {
		if m.Role != "user" {
			t.Errorf("message %d role = %q, want user", i, m.Role)
		}
	}
}

func TestSpeakerLabels(t *testing.T) {
	base := time.Now()
	other := &entity.AIEntity{Id: 9, Name: "nova", DisplayName: "Nova"}
	aiRepo := &fakeAIEntityRepo{entities: map[int64]*entity.AIEntity{9: other}}
	msgRepo := &fakeMessageRepo{newestFirst: []chatEntity.Message{
		{Id: 4, Content: "orphan", SendAt: base.Add(3 * time.Second)},
		aiMsg(3, 9, "from nova", base.Add(2*time.Second)),
		aiMsg(2, 7, "from self", base.Add(time.Second)),
		userMsg(1, 1, "from alice", base),
	}}
	userRepo := &fakeUserRepo{users: map[int64]string{1: "alice"}}
	svc := newTestContextService(msgRepo, userRepo, aiRepo, &fakeMemoryRepo{}, &fakeRetriever{})

	self := &entity.AIEntity{Id: 7, Name: "luna", DisplayName: "Luna"}
	out, err := svc.BuildConversationContext(context.Background(), 10, self, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"alice: from alice", "You: from self", "Nova: from nova", "Unknown: orphan"}
	for i, w := range want {
		if out[i].Content != w {
			t.Errorf("message %d = %q, want %q", i, out[i].Content, w)
		}
	}
}

func TestGetAIMemoriesRankTruncateAndAccess(t *testing.T) {
	candidates := []entity.AIMemory{
		{Id: 1, Summary: "low", ImportanceScore: 1.0},
		{Id: 2, Summary: "high", ImportanceScore: 3.0},
		{Id: 3, Summary: "mid", ImportanceScore: 2.0},
	}
	retriever := &fakeRetriever{candidates: candidates}
	memRepo := &fakeMemoryRepo{}
	svc := newTestContextService(&fakeMessageRepo{}, &fakeUserRepo{}, &fakeAIEntityRepo{}, memRepo, retriever)

	digest, err := svc.GetAIMemories(context.Background(), 7, "", nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 过采样倍数生效
	if retriever.lastLimit != 8 {
		t.Errorf("retrieve limit = %d, want 8", retriever.lastLimit)
	}
	// 只有最终选中的记忆计入访问统计
	if len(memRepo.accessedIds) != 2 {
		t.Fatalf("accessed ids = %v, want exactly the 2 selected", memRepo.accessedIds)
	}
	for _, id := range memRepo.accessedIds {
		if id != 2 && id != 3 {
			t.Errorf("unexpected accessed id %d", id)
		}
	}
	if !strings.Contains(digest, "high") || !strings.Contains(digest, "mid") {
		t.Errorf("digest missing selected summaries: %q", digest)
	}
	if strings.Contains(digest, "low") {
		t.Errorf("digest should not contain truncated memory: %q", digest)
	}
	if !strings.HasPrefix(digest, "# Previous Memories:\n") {
		t.Errorf("digest missing header: %q", digest)
	}
}

func TestGetAIMemoriesEmptyCandidates(t *testing.T) {
	svc := newTestContextService(&fakeMessageRepo{}, &fakeUserRepo{}, &fakeAIEntityRepo{}, &fakeMemoryRepo{}, &fakeRetriever{})
	digest, err := svc.GetAIMemories(context.Background(), 7, "", nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if digest != "" {
		t.Errorf("digest = %q, want empty (no bare header)", digest)
	}
}

func TestFormatMemoryDigestImportanceMarks(t *testing.T) {
	digest := formatMemoryDigest([]entity.AIMemory{
		{Summary: "rounded down", ImportanceScore: 3.4},
		{Summary: "rounded up", ImportanceScore: 1.5},
		{Summary: "no marks", ImportanceScore: 0.2},
	})
	lines := strings.Split(digest, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 lines, got %d: %q", len(lines), digest)
	}
	if lines[1] != "!!! rounded down" {
		t.Errorf("line 1 = %q, want %q", lines[1], "!!! rounded down")
	}
	if lines[2] != "!! rounded up" {
		t.Errorf("line 2 = %q, want %q", lines[2], "!! rounded up")
	}
	if lines[3] != "no marks" {
		t.Errorf("line 3 = %q, want bare summary", lines[3])
	}
}

func TestBuildFullContextTargetGate(t *testing.T) {
	svc := newTestContextService(&fakeMessageRepo{}, &fakeUserRepo{}, &fakeAIEntityRepo{}, &fakeMemoryRepo{}, &fakeRetriever{})
	ai := &entity.AIEntity{Id: 7}
	conversationId := int64(1)
	roomId := int64(2)

	cases := []struct {
		name   string
		req    *FullContextRequest
		wantOK bool
	}{
		{"both set", &FullContextRequest{AI: ai, ConversationId: &conversationId, RoomId: &roomId}, false},
		{"neither set", &FullContextRequest{AI: ai}, false},
		{"conversation only", &FullContextRequest{AI: ai, ConversationId: &conversationId}, true},
		{"room only", &FullContextRequest{AI: ai, RoomId: &roomId}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.BuildFullContext(context.Background(), tc.req)
			if tc.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantOK {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !xerr.IsKind(err, xerr.KindValidation) {
					t.Errorf("error kind = %v, want validation", err)
				}
			}
		})
	}
}

func TestBuildFullContextMemoriesExcluded(t *testing.T) {
	retriever := &fakeRetriever{candidates: []entity.AIMemory{{Id: 1, Summary: "m", ImportanceScore: 2}}}
	memRepo := &fakeMemoryRepo{}
	svc := newTestContextService(&fakeMessageRepo{}, &fakeUserRepo{}, &fakeAIEntityRepo{}, memRepo, retriever)

	conversationId := int64(1)
	out, err := svc.BuildFullContext(context.Background(), &FullContextRequest{
		AI:              &entity.AIEntity{Id: 7},
		ConversationId:  &conversationId,
		IncludeMemories: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.MemoryDigest != "" {
		t.Errorf("digest = %q, want empty", out.MemoryDigest)
	}
	// 关闭记忆时完全不触发检索与访问统计
	if retriever.calls != 0 {
		t.Errorf("retriever called %d times, want 0", retriever.calls)
	}
	if len(memRepo.accessedIds) != 0 {
		t.Errorf("accessed ids = %v, want none", memRepo.accessedIds)
	}
}

func TestBuildFullContextMemoryFailurePropagates(t *testing.T) {
	retriever := &fakeRetriever{err: xerr.New(xerr.KindRetrieval, "boom")}
	svc := newTestContextService(&fakeMessageRepo{}, &fakeUserRepo{}, &fakeAIEntityRepo{}, &fakeMemoryRepo{}, retriever)

	conversationId := int64(1)
	out, err := svc.BuildFullContext(context.Background(), &FullContextRequest{
		AI:              &entity.AIEntity{Id: 7},
		ConversationId:  &conversationId,
		IncludeMemories: true,
	})
	// 空摘要和检索失败必须可区分，失败不得折叠成无记忆上下文
	if !xerr.IsKind(err, xerr.KindRetrieval) {
		t.Fatalf("err = %v, want retrieval kind", err)
	}
	if out != nil {
		t.Errorf("context = %+v, want nil on retrieval failure", out)
	}
}
