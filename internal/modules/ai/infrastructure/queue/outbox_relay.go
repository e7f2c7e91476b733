package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/internal/modules/ai/infrastructure/mq"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// ResponseOutboxRelay 轮询 ai_response_job 表，把待投递任务转发到 Kafka。
// 任务行先落库再投递，保证消息与任务状态同库提交后不丢。
type ResponseOutboxRelay struct {
	repo         repository.ResponseJobRepository
	pub          mq.Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
}

func NewResponseOutboxRelay(repo repository.ResponseJobRepository, pub mq.Publisher, topic string, batchSize int, pollInterval time.Duration) *ResponseOutboxRelay {
	if batchSize <= 0 {
		batchSize = 200
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &ResponseOutboxRelay{
		repo:         repo,
		pub:          pub,
		topic:        strings.TrimSpace(topic),
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

func (r *ResponseOutboxRelay) Run(ctx context.Context) error {
	if r.repo == nil {
		return errors.New("response job repo is nil")
	}
	if r.pub == nil {
		return errors.New("publisher is nil")
	}
	if r.topic == "" {
		return errors.New("response topic is empty")
	}

	backoff := r.pollInterval
	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			time.Sleep(backoff)
			backoff = backoff * 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = r.pollInterval

		if n == 0 {
			time.Sleep(r.pollInterval)
		}
	}
}

func (r *ResponseOutboxRelay) RunOnce(ctx context.Context) (int, error) {
	now := time.Now()
	jobs, err := r.repo.ClaimForPublish(ctx, now, r.batchSize)
	if err != nil {
		zlog.Warn("response outbox relay claim failed", zap.Error(err))
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	published := 0
	for i := range jobs {
		job := jobs[i]

		if pubErr := r.pub.Publish(ctx, mq.ResponseJobMessage(r.topic, job.Id, job.DedupKey)); pubErr != nil {
			next := computeNextRetry(now, job.PublishRetries)
			_ = r.repo.MarkPublishFailed(ctx, job.Id, next, pubErr.Error())
			continue
		}

		if err := r.repo.MarkPublished(ctx, job.Id, time.Now()); err != nil {
			zlog.Warn("response outbox relay mark published failed", zap.Int64("id", job.Id), zap.Error(err))
			continue
		}
		published++
	}

	return published, nil
}

// computeNextRetry 指数退避，封顶 5 分钟
func computeNextRetry(now time.Time, retryCount int) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}
	d := 500 * time.Millisecond
	for i := 0; i < retryCount && d < 5*time.Minute; i++ {
		d = d * 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return now.Add(d)
}
