package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type responseJobRepositoryImpl struct {
	db *gorm.DB
}

func NewResponseJobRepository(db *gorm.DB) repository.ResponseJobRepository {
	return &responseJobRepositoryImpl{db: db}
}

func (r *responseJobRepositoryImpl) Create(ctx context.Context, job *entity.AIResponseJob) error {
	if job == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *responseJobRepositoryImpl) GetById(ctx context.Context, id int64) (*entity.AIResponseJob, error) {
	var job entity.AIResponseJob
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if err == nil {
		return &job, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *responseJobRepositoryImpl) ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]entity.AIResponseJob, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []entity.AIResponseJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jobs []entity.AIResponseJob
		q := tx.Model(&entity.AIResponseJob{}).
			Where("status = ?", entity.JobStatusPending).
			Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
			Order("id ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			out = []entity.AIResponseJob{}
			return nil
		}

		ids := make([]int64, 0, len(jobs))
		for i := range jobs {
			ids = append(ids, jobs[i].Id)
		}
		if err := tx.Model(&entity.AIResponseJob{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": entity.JobStatusPublished, "updated_at": now}).Error; err != nil {
			return err
		}

		out = jobs
		return nil
	})
	return out, err
}

func (r *responseJobRepositoryImpl) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error {
	updates := map[string]any{
		"status":     entity.JobStatusPublished,
		"error_msg":  "",
		"updated_at": publishedAt,
	}
	return r.db.WithContext(ctx).Model(&entity.AIResponseJob{}).Where("id = ?", id).Updates(updates).Error
}

// MarkPublishFailed 投递失败只累计 publish_retries，不占用生成侧的重试额度
func (r *responseJobRepositoryImpl) MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	updates := map[string]any{
		"status":          entity.JobStatusPending,
		"publish_retries": gorm.Expr("publish_retries + 1"),
		"next_retry_at":   nextRetryAt,
		"error_msg":       truncateErr(errMsg),
		"updated_at":      time.Now(),
	}
	return r.db.WithContext(ctx).Model(&entity.AIResponseJob{}).Where("id = ?", id).Updates(updates).Error
}

func (r *responseJobRepositoryImpl) TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.AIResponseJob{}).
		Where("id = ? AND status = ?", id, entity.JobStatusPublished).
		Updates(map[string]any{"status": entity.JobStatusProcessing, "error_msg": "", "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

func (r *responseJobRepositoryImpl) MarkDone(ctx context.Context, id int64, resultMsgId int64) error {
	updates := map[string]any{
		"status":        entity.JobStatusDone,
		"result_msg_id": resultMsgId,
		"error_msg":     "",
		"updated_at":    time.Now(),
	}
	return r.db.WithContext(ctx).Model(&entity.AIResponseJob{}).Where("id = ?", id).Updates(updates).Error
}

func (r *responseJobRepositoryImpl) MarkSkipped(ctx context.Context, id int64, reason string) error {
	updates := map[string]any{
		"status":      entity.JobStatusSkipped,
		"skip_reason": strings.TrimSpace(reason),
		"updated_at":  time.Now(),
	}
	return r.db.WithContext(ctx).Model(&entity.AIResponseJob{}).Where("id = ?", id).Updates(updates).Error
}

// MarkRetry 回到待投递状态，由 outbox 中继在到期后重新发布
func (r *responseJobRepositoryImpl) MarkRetry(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	updates := map[string]any{
		"status":        entity.JobStatusPending,
		"retry_count":   gorm.Expr("retry_count + 1"),
		"next_retry_at": nextRetryAt,
		"error_msg":     truncateErr(errMsg),
		"updated_at":    time.Now(),
	}
	return r.db.WithContext(ctx).Model(&entity.AIResponseJob{}).Where("id = ?", id).Updates(updates).Error
}

func (r *responseJobRepositoryImpl) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	updates := map[string]any{
		"status":     entity.JobStatusFailed,
		"error_msg":  truncateErr(errMsg),
		"updated_at": time.Now(),
	}
	return r.db.WithContext(ctx).Model(&entity.AIResponseJob{}).Where("id = ?", id).Updates(updates).Error
}

func truncateErr(errMsg string) string {
	errMsg = strings.TrimSpace(errMsg)
	if len(errMsg) > 255 {
		errMsg = errMsg[:255]
	}
	return errMsg
}
