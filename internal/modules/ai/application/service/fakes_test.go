package service

import (
	"context"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	userEntity "RoomLink/internal/modules/user/domain/entity"

	"github.com/cloudwego/eino/schema"
)

// 测试替身：只实现被测路径用到的行为，未覆盖的方法返回零值

type fakeMessageRepo struct {
	newestFirst []chatEntity.Message
	listErr     error
	created     []*chatEntity.Message
	deleted     []int64
	idle        []int64
}

func (f *fakeMessageRepo) ListConversationMessages(ctx context.Context, conversationId int64, page int, pageSize int) ([]chatEntity.Message, int64, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	start := (page - 1) * pageSize
	if start >= len(f.newestFirst) {
		return nil, int64(len(f.newestFirst)), nil
	}
	end := start + pageSize
	if end > len(f.newestFirst) {
		end = len(f.newestFirst)
	}
	return f.newestFirst[start:end], int64(len(f.newestFirst)), nil
}

func (f *fakeMessageRepo) ListRoomMessages(ctx context.Context, roomId int64, page int, pageSize int) ([]chatEntity.Message, int64, error) {
	return f.ListConversationMessages(ctx, roomId, page, pageSize)
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *chatEntity.Message) error {
	message.Id = int64(1000 + len(f.created))
	f.created = append(f.created, message)
	return nil
}

func (f *fakeMessageRepo) GetById(ctx context.Context, id int64) (*chatEntity.Message, error) {
	for i := range f.newestFirst {
		if f.newestFirst[i].Id == id {
			return &f.newestFirst[i], nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) Delete(ctx context.Context, id int64) (bool, error) {
	f.deleted = append(f.deleted, id)
	return true, nil
}

func (f *fakeMessageRepo) ListConversationsIdleSince(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	return f.idle, nil
}

type fakeUserRepo struct {
	users map[int64]string // id -> username
}

func (f *fakeUserRepo) CreateUserInfo(ctx context.Context, user *userEntity.UserInfo) error { return nil }

func (f *fakeUserRepo) GetUserInfoById(ctx context.Context, id int64) (*userEntity.UserInfo, error) {
	if name, ok := f.users[id]; ok {
		return &userEntity.UserInfo{Id: id, Username: name}, nil
	}
	return nil, nil
}

func (f *fakeUserRepo) GetUserInfoByUsername(ctx context.Context, username string) (*userEntity.UserInfo, error) {
	return nil, nil
}

func (f *fakeUserRepo) GetBatchUserInfo(ctx context.Context, ids []int64) ([]userEntity.UserInfo, error) {
	var out []userEntity.UserInfo
	for _, id := range ids {
		if name, ok := f.users[id]; ok {
			out = append(out, userEntity.UserInfo{Id: id, Username: name})
		}
	}
	return out, nil
}

type fakeAIEntityRepo struct {
	entities map[int64]*entity.AIEntity
	byRoom   map[int64]*entity.AIEntity
	updated  []*entity.AIEntity
}

func (f *fakeAIEntityRepo) Create(ctx context.Context, ai *entity.AIEntity) error {
	ai.Id = int64(len(f.entities) + 1)
	if f.entities == nil {
		f.entities = make(map[int64]*entity.AIEntity)
	}
	f.entities[ai.Id] = ai
	return nil
}

func (f *fakeAIEntityRepo) GetById(ctx context.Context, id int64) (*entity.AIEntity, error) {
	return f.entities[id], nil
}

func (f *fakeAIEntityRepo) GetByName(ctx context.Context, name string) (*entity.AIEntity, error) {
	for _, ai := range f.entities {
		if ai.Name == name {
			return ai, nil
		}
	}
	return nil, nil
}

func (f *fakeAIEntityRepo) GetByCurrentRoom(ctx context.Context, roomId int64) (*entity.AIEntity, error) {
	return f.byRoom[roomId], nil
}

func (f *fakeAIEntityRepo) GetInConversation(ctx context.Context, conversationId int64) (*entity.AIEntity, error) {
	return nil, nil
}

func (f *fakeAIEntityRepo) Update(ctx context.Context, ai *entity.AIEntity) error {
	f.updated = append(f.updated, ai)
	return nil
}

func (f *fakeAIEntityRepo) ListOnline(ctx context.Context) ([]entity.AIEntity, error) {
	return nil, nil
}

type fakeMemoryRepo struct {
	memories     []entity.AIMemory
	created      []*entity.AIMemory
	accessedIds  []int64
	incrementErr error
}

func (f *fakeMemoryRepo) Create(ctx context.Context, m *entity.AIMemory) error {
	m.Id = int64(100 + len(f.created))
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMemoryRepo) CreateBatch(ctx context.Context, memories []entity.AIMemory) error {
	return nil
}

func (f *fakeMemoryRepo) GetById(ctx context.Context, id int64) (*entity.AIMemory, error) {
	for i := range f.memories {
		if f.memories[i].Id == id {
			return &f.memories[i], nil
		}
	}
	return nil, nil
}

func (f *fakeMemoryRepo) GetEntityMemories(ctx context.Context, entityId int64, roomId *int64, limit int) ([]entity.AIMemory, error) {
	return f.memories, nil
}

func (f *fakeMemoryRepo) SearchByKeywords(ctx context.Context, entityId int64, keywords []string, limit int) ([]entity.AIMemory, error) {
	return f.memories, nil
}

func (f *fakeMemoryRepo) Update(ctx context.Context, m *entity.AIMemory) error { return nil }

func (f *fakeMemoryRepo) IncrementAccess(ctx context.Context, ids []int64, accessedAt time.Time) error {
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.accessedIds = append(f.accessedIds, ids...)
	return nil
}

func (f *fakeMemoryRepo) Delete(ctx context.Context, id int64) error { return nil }

type fakeRetriever struct {
	candidates []entity.AIMemory
	err        error
	calls      int
	lastLimit  int
}

func (f *fakeRetriever) RetrieveCandidates(ctx context.Context, entityId int64, query string, keywords []string, limit int) ([]entity.AIMemory, error) {
	f.calls++
	f.lastLimit = limit
	return f.candidates, f.err
}

type fakeCooldownRepo struct {
	upserts int
}

func (f *fakeCooldownRepo) Upsert(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64, respondedAt time.Time) error {
	f.upserts++
	return nil
}

func (f *fakeCooldownRepo) Get(ctx context.Context, aiEntityId int64, roomId *int64, conversationId *int64) (*entity.AICooldown, error) {
	return nil, nil
}

type fakeConversationRepo struct {
	touched []int64
}

func (f *fakeConversationRepo) Create(ctx context.Context, conv *chatEntity.Conversation) error {
	return nil
}

func (f *fakeConversationRepo) GetById(ctx context.Context, id int64) (*chatEntity.Conversation, error) {
	return nil, nil
}

func (f *fakeConversationRepo) AddParticipant(ctx context.Context, p *chatEntity.ConversationParticipant) error {
	return nil
}

func (f *fakeConversationRepo) RemoveAIParticipant(ctx context.Context, conversationId int64, aiEntityId int64) error {
	return nil
}

func (f *fakeConversationRepo) ListParticipants(ctx context.Context, conversationId int64) ([]chatEntity.ConversationParticipant, error) {
	return nil, nil
}

func (f *fakeConversationRepo) TouchLastMessageAt(ctx context.Context, conversationId int64, at time.Time) error {
	f.touched = append(f.touched, conversationId)
	return nil
}

type fakeProvider struct {
	response      string
	err           error
	calls         int
	lastSystem    string
	lastModelName string
	lastMessages  int
}

func (f *fakeProvider) GenerateResponse(ctx context.Context, messages []*schema.Message, systemPrompt string, modelName string, temperature float64, maxTokens int) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastModelName = modelName
	f.lastMessages = len(messages)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}
