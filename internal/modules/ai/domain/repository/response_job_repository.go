package repository

import (
	"context"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
)

type ResponseJobRepository interface {
	Create(ctx context.Context, job *entity.AIResponseJob) error
	GetById(ctx context.Context, id int64) (*entity.AIResponseJob, error)
	// ClaimForPublish 取出待投递（含到期重试）的任务并置为已投递状态
	ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]entity.AIResponseJob, error)
	MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error
	MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error
	// TryMarkProcessing 消费端幂等认领，已被处理过的任务返回 false
	TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkDone(ctx context.Context, id int64, resultMsgId int64) error
	MarkSkipped(ctx context.Context, id int64, reason string) error
	// MarkRetry 瞬时失败，记录错误并安排下次重试
	MarkRetry(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error
	// MarkFailed 重试耗尽后的终态
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}
