package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/application/service"
	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/infrastructure/mq"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	userEntity "RoomLink/internal/modules/user/domain/entity"
	"RoomLink/pkg/xerr"

	"github.com/cloudwego/eino/schema"
)

type jobCall struct {
	name   string
	reason string
	errMsg string
	result int64
}

type fakeJobRepo struct {
	job       *entity.AIResponseJob
	claimable bool
	claims    int
	calls     []jobCall
}

func (f *fakeJobRepo) Create(ctx context.Context, job *entity.AIResponseJob) error { return nil }

func (f *fakeJobRepo) GetById(ctx context.Context, id int64) (*entity.AIResponseJob, error) {
	if f.job != nil && f.job.Id == id {
		return f.job, nil
	}
	return nil, nil
}

func (f *fakeJobRepo) ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]entity.AIResponseJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error {
	return nil
}

func (f *fakeJobRepo) MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	return nil
}

func (f *fakeJobRepo) TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error) {
	f.claims++
	return f.claimable, nil
}

func (f *fakeJobRepo) MarkDone(ctx context.Context, id int64, resultMsgId int64) error {
	f.calls = append(f.calls, jobCall{name: "done", result: resultMsgId})
	return nil
}

func (f *fakeJobRepo) MarkSkipped(ctx context.Context, id int64, reason string) error {
	f.calls = append(f.calls, jobCall{name: "skipped", reason: reason})
	return nil
}

func (f *fakeJobRepo) MarkRetry(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	f.calls = append(f.calls, jobCall{name: "retry", errMsg: errMsg})
	return nil
}

func (f *fakeJobRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	f.calls = append(f.calls, jobCall{name: "failed", errMsg: errMsg})
	return nil
}

// fakeEntityRepo 支持在第 offlineAfterGets 次查询后返回下线状态，模拟生成期间的竞态
type fakeEntityRepo struct {
	ai               *entity.AIEntity
	gets             int
	offlineAfterGets int
}

func (f *fakeEntityRepo) Create(ctx context.Context, ai *entity.AIEntity) error { return nil }

func (f *fakeEntityRepo) GetById(ctx context.Context, id int64) (*entity.AIEntity, error) {
	if f.ai == nil || f.ai.Id != id {
		return nil, nil
	}
	f.gets++
	if f.offlineAfterGets > 0 && f.gets > f.offlineAfterGets {
		stale := *f.ai
		stale.Status = entity.AIStatusOffline
		return &stale, nil
	}
	return f.ai, nil
}

func (f *fakeEntityRepo) GetByName(ctx context.Context, name string) (*entity.AIEntity, error) {
	return nil, nil
}

func (f *fakeEntityRepo) GetByCurrentRoom(ctx context.Context, roomId int64) (*entity.AIEntity, error) {
	return nil, nil
}

func (f *fakeEntityRepo) GetInConversation(ctx context.Context, conversationId int64) (*entity.AIEntity, error) {
	return nil, nil
}

func (f *fakeEntityRepo) Update(ctx context.Context, ai *entity.AIEntity) error { return nil }

func (f *fakeEntityRepo) ListOnline(ctx context.Context) ([]entity.AIEntity, error) { return nil, nil }

type fakeMsgRepo struct {
	messages map[int64]*chatEntity.Message
	created  []*chatEntity.Message
	deleted  []int64
}

func (f *fakeMsgRepo) ListConversationMessages(ctx context.Context, conversationId int64, page int, pageSize int) ([]chatEntity.Message, int64, error) {
	var out []chatEntity.Message
	for _, m := range f.messages {
		out = append(out, *m)
	}
	return out, int64(len(out)), nil
}

func (f *fakeMsgRepo) ListRoomMessages(ctx context.Context, roomId int64, page int, pageSize int) ([]chatEntity.Message, int64, error) {
	return f.ListConversationMessages(ctx, roomId, page, pageSize)
}

func (f *fakeMsgRepo) Create(ctx context.Context, message *chatEntity.Message) error {
	message.Id = int64(500 + len(f.created))
	f.created = append(f.created, message)
	return nil
}

func (f *fakeMsgRepo) GetById(ctx context.Context, id int64) (*chatEntity.Message, error) {
	return f.messages[id], nil
}

func (f *fakeMsgRepo) Delete(ctx context.Context, id int64) (bool, error) {
	f.deleted = append(f.deleted, id)
	return true, nil
}

func (f *fakeMsgRepo) ListConversationsIdleSince(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	return nil, nil
}

type fakeUserInfoRepo struct{}

func (fakeUserInfoRepo) CreateUserInfo(ctx context.Context, u *userEntity.UserInfo) error { return nil }

func (fakeUserInfoRepo) GetUserInfoById(ctx context.Context, id int64) (*userEntity.UserInfo, error) {
	return nil, nil
}

func (fakeUserInfoRepo) GetUserInfoByUsername(ctx context.Context, username string) (*userEntity.UserInfo, error) {
	return nil, nil
}

func (fakeUserInfoRepo) GetBatchUserInfo(ctx context.Context, ids []int64) ([]userEntity.UserInfo, error) {
	return nil, nil
}

type fakeMemRepo struct{}

func (fakeMemRepo) Create(ctx context.Context, m *entity.AIMemory) error           { return nil }
func (fakeMemRepo) CreateBatch(ctx context.Context, ms []entity.AIMemory) error    { return nil }
func (fakeMemRepo) GetById(ctx context.Context, id int64) (*entity.AIMemory, error) { return nil, nil }

func (fakeMemRepo) GetEntityMemories(ctx context.Context, entityId int64, roomId *int64, limit int) ([]entity.AIMemory, error) {
	return nil, nil
}

func (fakeMemRepo) SearchByKeywords(ctx context.Context, entityId int64, keywords []string, limit int) ([]entity.AIMemory, error) {
	return nil, nil
}

func (fakeMemRepo) Update(ctx context.Context, m *entity.AIMemory) error { return nil }

func (fakeMemRepo) IncrementAccess(ctx context.Context, ids []int64, at time.Time) error { return nil }

func (fakeMemRepo) Delete(ctx context.Context, id int64) error { return nil }

type fakeMemRetriever struct{}

func (fakeMemRetriever) RetrieveCandidates(ctx context.Context, entityId int64, query string, keywords []string, limit int) ([]entity.AIMemory, error) {
	return nil, nil
}

type fakeConvRepo struct{}

func (fakeConvRepo) Create(ctx context.Context, c *chatEntity.Conversation) error { return nil }

func (fakeConvRepo) GetById(ctx context.Context, id int64) (*chatEntity.Conversation, error) {
	return nil, nil
}

func (fakeConvRepo) AddParticipant(ctx context.Context, p *chatEntity.ConversationParticipant) error {
	return nil
}

func (fakeConvRepo) ListParticipants(ctx context.Context, conversationId int64) ([]chatEntity.ConversationParticipant, error) {
	return nil, nil
}

func (fakeConvRepo) TouchLastMessageAt(ctx context.Context, conversationId int64, at time.Time) error {
	return nil
}

func (fakeConvRepo) RemoveAIParticipant(ctx context.Context, conversationId int64, aiEntityId int64) error {
	return nil
}

type fakeCooldown struct{}

func (fakeCooldown) Upsert(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64, at time.Time) error {
	return nil
}

func (fakeCooldown) Get(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64) (*entity.AICooldown, error) {
	return nil, nil
}

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) GenerateResponse(ctx context.Context, messages []*schema.Message, systemPrompt string, modelName string, temperature float64, maxTokens int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type workerFixture struct {
	worker  *ResponseWorker
	jobRepo *fakeJobRepo
	aiRepo  *fakeEntityRepo
	msgRepo *fakeMsgRepo
}

func newFixture(job *entity.AIResponseJob, ai *entity.AIEntity, trigger *chatEntity.Message, llm *fakeLLM) *workerFixture {
	jobRepo := &fakeJobRepo{job: job, claimable: true}
	aiRepo := &fakeEntityRepo{ai: ai}
	msgRepo := &fakeMsgRepo{messages: map[int64]*chatEntity.Message{}}
	if trigger != nil {
		msgRepo.messages[trigger.Id] = trigger
	}

	conf := config.Default()
	ctxSvc := service.NewContextService(msgRepo, fakeUserInfoRepo{}, aiRepo, fakeMemRepo{}, fakeMemRetriever{}, conf.MemoryConfig.OverfetchFactor)
	respSvc := service.NewResponseService(ctxSvc, llm, nil, msgRepo, fakeConvRepo{}, fakeCooldown{}, conf.MemoryConfig)

	w := NewResponseWorker(jobRepo, aiRepo, msgRepo, respSvc, conf.WorkerConfig)
	return &workerFixture{worker: w, jobRepo: jobRepo, aiRepo: aiRepo, msgRepo: msgRepo}
}

func roomJob(retries int) *entity.AIResponseJob {
	return &entity.AIResponseJob{
		Id:         1,
		AIEntityId: sql.NullInt64{Int64: 7, Valid: true},
		RoomId:     sql.NullInt64{Int64: 5, Valid: true},
		MessageId:  10,
		Status:     entity.JobStatusPublished,
		RetryCount: retries,
	}
}

func onlineAI() *entity.AIEntity {
	return &entity.AIEntity{
		Id: 7, Name: "luna", DisplayName: "Luna",
		Status:        entity.AIStatusOnline,
		CurrentRoomId: sql.NullInt64{Int64: 5, Valid: true},
		RoomStrategy:  entity.RoomStrategyMentionOnly,
	}
}

func triggerMessage() *chatEntity.Message {
	return &chatEntity.Message{
		Id:           10,
		RoomId:       sql.NullInt64{Int64: 5, Valid: true},
		SenderUserId: sql.NullInt64{Int64: 1, Valid: true},
		Content:      "luna, what do you think?",
	}
}

func jobMessage() mq.Message {
	return mq.Message{Topic: "ai-response-jobs", Value: []byte("1")}
}

func lastCall(t *testing.T, repo *fakeJobRepo) jobCall {
	t.Helper()
	if len(repo.calls) == 0 {
		t.Fatal("no job state transition recorded")
	}
	return repo.calls[len(repo.calls)-1]
}

func TestHandleCompletesJob(t *testing.T) {
	fx := newFixture(roomJob(0), onlineAI(), triggerMessage(), &fakeLLM{response: "I think it works"})
	if err := fx.worker.Handle(context.Background(), jobMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := lastCall(t, fx.jobRepo)
	if call.name != "done" {
		t.Fatalf("final state = %q, want done", call.name)
	}
	if len(fx.msgRepo.created) != 1 {
		t.Fatalf("created %d messages, want 1", len(fx.msgRepo.created))
	}
	if call.result != fx.msgRepo.created[0].Id {
		t.Errorf("result msg id = %d, want %d", call.result, fx.msgRepo.created[0].Id)
	}
}

func TestHandleSkipsUnclaimableJob(t *testing.T) {
	fx := newFixture(roomJob(0), onlineAI(), triggerMessage(), &fakeLLM{response: "x"})
	fx.jobRepo.claimable = false
	if err := fx.worker.Handle(context.Background(), jobMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fx.jobRepo.calls) != 0 {
		t.Errorf("unclaimable job must not transition, got %v", fx.jobRepo.calls)
	}
}

func TestHandleSkipsMissingEntity(t *testing.T) {
	fx := newFixture(roomJob(0), nil, triggerMessage(), &fakeLLM{response: "x"})
	_ = fx.worker.Handle(context.Background(), jobMessage())
	call := lastCall(t, fx.jobRepo)
	if call.name != "skipped" || call.reason != SkipReasonEntityMissing {
		t.Errorf("got %+v, want skip %q", call, SkipReasonEntityMissing)
	}
}

func TestHandleSkipsOfflineEntity(t *testing.T) {
	ai := onlineAI()
	ai.Status = entity.AIStatusOffline
	fx := newFixture(roomJob(0), ai, triggerMessage(), &fakeLLM{response: "x"})
	_ = fx.worker.Handle(context.Background(), jobMessage())
	call := lastCall(t, fx.jobRepo)
	if call.name != "skipped" || call.reason != SkipReasonPreCheck {
		t.Errorf("got %+v, want skip %q", call, SkipReasonPreCheck)
	}
}

func TestHandleSkipsEntityInDifferentRoom(t *testing.T) {
	ai := onlineAI()
	ai.CurrentRoomId = sql.NullInt64{Int64: 99, Valid: true}
	fx := newFixture(roomJob(0), ai, triggerMessage(), &fakeLLM{response: "x"})
	_ = fx.worker.Handle(context.Background(), jobMessage())
	call := lastCall(t, fx.jobRepo)
	if call.name != "skipped" || call.reason != SkipReasonPreCheck {
		t.Errorf("got %+v, want skip %q", call, SkipReasonPreCheck)
	}
}

func TestHandleSkipsWhenStrategyDeclines(t *testing.T) {
	trigger := triggerMessage()
	trigger.Content = "no mention here"
	fx := newFixture(roomJob(0), onlineAI(), trigger, &fakeLLM{response: "x"})
	_ = fx.worker.Handle(context.Background(), jobMessage())
	call := lastCall(t, fx.jobRepo)
	if call.name != "skipped" || call.reason != SkipReasonStrategy {
		t.Errorf("got %+v, want skip %q", call, SkipReasonStrategy)
	}
}

func TestHandleRetractsReplyOnPostCheckRace(t *testing.T) {
	fx := newFixture(roomJob(0), onlineAI(), triggerMessage(), &fakeLLM{response: "late reply"})
	// 第一次查询（前置校验）在线，之后（后置复核）下线
	fx.aiRepo.offlineAfterGets = 1
	_ = fx.worker.Handle(context.Background(), jobMessage())

	call := lastCall(t, fx.jobRepo)
	if call.name != "skipped" || call.reason != SkipReasonPostCheck {
		t.Fatalf("got %+v, want skip %q", call, SkipReasonPostCheck)
	}
	if len(fx.msgRepo.created) != 1 || len(fx.msgRepo.deleted) != 1 {
		t.Fatalf("created=%d deleted=%d, want the generated reply retracted", len(fx.msgRepo.created), len(fx.msgRepo.deleted))
	}
	if fx.msgRepo.deleted[0] != fx.msgRepo.created[0].Id {
		t.Errorf("deleted id %d != created id %d", fx.msgRepo.deleted[0], fx.msgRepo.created[0].Id)
	}
}

func TestHandleRetriesOnProviderError(t *testing.T) {
	fx := newFixture(roomJob(1), onlineAI(), triggerMessage(), &fakeLLM{err: errors.New("rate limited")})
	_ = fx.worker.Handle(context.Background(), jobMessage())
	call := lastCall(t, fx.jobRepo)
	if call.name != "retry" {
		t.Errorf("got %+v, want retry", call)
	}
}

func TestHandleFailsAfterMaxAttempts(t *testing.T) {
	// MaxAttempts=3：第三次执行（retry_count=2）失败后不再重试
	fx := newFixture(roomJob(2), onlineAI(), triggerMessage(), &fakeLLM{err: errors.New("rate limited")})
	_ = fx.worker.Handle(context.Background(), jobMessage())
	call := lastCall(t, fx.jobRepo)
	if call.name != "failed" {
		t.Errorf("got %+v, want failed after retries exhausted", call)
	}
}

func TestHandleDoesNotClaimWithoutCapacity(t *testing.T) {
	fx := newFixture(roomJob(0), onlineAI(), triggerMessage(), &fakeLLM{response: "x"})
	fx.worker.sem = make(chan struct{}, 1)
	fx.worker.sem <- struct{}{} // 占满并发额度

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fx.worker.Handle(ctx, jobMessage()); err == nil {
		t.Fatal("expected error so the message is redelivered, got nil")
	}
	// 拿不到并发额度就不能认领，任务不得处于 processing 干等
	if fx.jobRepo.claims != 0 {
		t.Errorf("claims = %d, want 0 before capacity is acquired", fx.jobRepo.claims)
	}
}

func TestHandleValidationFailureIsNotRetried(t *testing.T) {
	fx := newFixture(roomJob(0), onlineAI(), triggerMessage(), &fakeLLM{err: xerr.New(xerr.KindValidation, "prompt rejected")})
	_ = fx.worker.Handle(context.Background(), jobMessage())
	call := lastCall(t, fx.jobRepo)
	if call.name != "failed" {
		t.Errorf("got %+v, want hard failure without retry", call)
	}
}

func TestHandleDiscardsMalformedPayload(t *testing.T) {
	fx := newFixture(roomJob(0), onlineAI(), triggerMessage(), &fakeLLM{response: "x"})
	if err := fx.worker.Handle(context.Background(), mq.Message{Value: []byte("not-a-number")}); err != nil {
		t.Fatalf("malformed payload must be discarded, got: %v", err)
	}
	if len(fx.jobRepo.calls) != 0 {
		t.Errorf("no transitions expected, got %v", fx.jobRepo.calls)
	}
}
