package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/infrastructure/mq"
)

type stubJobRepo struct {
	claimed    []entity.AIResponseJob
	published  []int64
	pubFailed  []int64
	lastNextAt time.Time
}

func (s *stubJobRepo) Create(ctx context.Context, job *entity.AIResponseJob) error { return nil }

func (s *stubJobRepo) GetById(ctx context.Context, id int64) (*entity.AIResponseJob, error) {
	return nil, nil
}

func (s *stubJobRepo) ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]entity.AIResponseJob, error) {
	out := s.claimed
	s.claimed = nil
	return out, nil
}

func (s *stubJobRepo) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubJobRepo) MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	s.pubFailed = append(s.pubFailed, id)
	s.lastNextAt = nextRetryAt
	return nil
}

func (s *stubJobRepo) TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) MarkDone(ctx context.Context, id int64, resultMsgId int64) error { return nil }
func (s *stubJobRepo) MarkSkipped(ctx context.Context, id int64, reason string) error  { return nil }

func (s *stubJobRepo) MarkRetry(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	return nil
}

func (s *stubJobRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error { return nil }

type stubPublisher struct {
	messages []mq.Message
	failFor  map[int64]bool
}

func (p *stubPublisher) Publish(ctx context.Context, msg mq.Message) error {
	if p.failFor[parseId(msg.Value)] {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func parseId(b []byte) int64 {
	var id int64
	for _, c := range b {
		id = id*10 + int64(c-'0')
	}
	return id
}

func pendingJob(id int64) entity.AIResponseJob {
	return entity.AIResponseJob{
		Id:         id,
		AIEntityId: sql.NullInt64{Int64: 7, Valid: true},
		MessageId:  10,
		DedupKey:   "m10:e7",
		Status:     entity.JobStatusPublished,
	}
}

func TestRunOncePublishesClaimedJobs(t *testing.T) {
	repo := &stubJobRepo{claimed: []entity.AIResponseJob{pendingJob(1), pendingJob(2)}}
	pub := &stubPublisher{}
	relay := NewResponseOutboxRelay(repo, pub, "ai-response-jobs", 10, time.Millisecond)

	n, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("published = %d, want 2", n)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(pub.messages))
	}
	if string(pub.messages[0].Value) != "1" {
		t.Errorf("payload = %q, want job id", pub.messages[0].Value)
	}
	if string(pub.messages[0].Key) != "m10:e7" {
		t.Errorf("key = %q, want dedup key", pub.messages[0].Key)
	}
	if pub.messages[0].Headers[mq.HeaderDedupKey] != "m10:e7" {
		t.Errorf("headers = %v, want dedup key header", pub.messages[0].Headers)
	}
	if jobId, err := mq.ParseResponseJobId(pub.messages[0]); err != nil || jobId != 1 {
		t.Errorf("ParseResponseJobId = (%d, %v), want (1, nil)", jobId, err)
	}
	if len(repo.published) != 2 {
		t.Errorf("marked published = %v, want both jobs", repo.published)
	}
}

func TestRunOnceMarksFailedPublishForRetry(t *testing.T) {
	repo := &stubJobRepo{claimed: []entity.AIResponseJob{pendingJob(1), pendingJob(2)}}
	pub := &stubPublisher{failFor: map[int64]bool{1: true}}
	relay := NewResponseOutboxRelay(repo, pub, "ai-response-jobs", 10, time.Millisecond)

	n, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("published = %d, want 1", n)
	}
	if len(repo.pubFailed) != 1 || repo.pubFailed[0] != 1 {
		t.Errorf("pubFailed = %v, want [1]", repo.pubFailed)
	}
	if !repo.lastNextAt.After(time.Now().Add(-time.Second)) {
		t.Error("next retry time must be in the future")
	}
}

func TestRunOnceBackoffUsesPublishRetries(t *testing.T) {
	// 投递退避只看 publish_retries，与生成侧 retry_count 互不干扰
	job := pendingJob(1)
	job.PublishRetries = 4
	repo := &stubJobRepo{claimed: []entity.AIResponseJob{job}}
	pub := &stubPublisher{failFor: map[int64]bool{1: true}}
	relay := NewResponseOutboxRelay(repo, pub, "ai-response-jobs", 10, time.Millisecond)

	before := time.Now()
	if _, err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 500ms * 2^4 = 8s
	if got := repo.lastNextAt.Sub(before); got < 7*time.Second {
		t.Errorf("next retry in %v, want exponential backoff from publish retries", got)
	}
}

func TestComputeNextRetryBackoff(t *testing.T) {
	now := time.Now()
	prev := time.Duration(0)
	for retry := 0; retry < 12; retry++ {
		d := computeNextRetry(now, retry).Sub(now)
		if d < prev {
			t.Fatalf("backoff must not shrink: retry=%d d=%v prev=%v", retry, d, prev)
		}
		if d > 5*time.Minute {
			t.Fatalf("backoff exceeded cap: %v", d)
		}
		prev = d
	}
}
