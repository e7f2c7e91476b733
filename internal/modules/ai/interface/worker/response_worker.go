package worker

import (
	"context"
	"fmt"
	"time"

	"RoomLink/internal/config"
	"RoomLink/internal/modules/ai/application/service"
	"RoomLink/internal/modules/ai/domain/entity"
	"RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/internal/modules/ai/infrastructure/mq"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	chatRepository "RoomLink/internal/modules/chat/domain/repository"
	"RoomLink/pkg/xerr"
	"RoomLink/pkg/zlog"

	"go.uber.org/zap"
)

// 跳过原因，写入 skip_reason 列
const (
	SkipReasonEntityMissing  = "entity missing"
	SkipReasonTriggerMissing = "trigger missing"
	SkipReasonPreCheck       = "pre-check failed"
	SkipReasonStrategy       = "strategy declined"
	SkipReasonPostCheck      = "post-check failed"
)

// ResponseWorker 消费响应任务并驱动完整状态机：
// 认领 -> 前置校验（在线且仍在目标房间）-> 策略判定 -> 生成回复 -> 后置复核。
// 后置复核重读实体状态，期间下线或离开房间的回复会被撤回删除。
type ResponseWorker struct {
	jobRepo         repository.ResponseJobRepository
	aiEntityRepo    repository.AIEntityRepository
	messageRepo     chatRepository.MessageRepository
	responseService *service.ResponseService
	conf            config.WorkerConfig
	// sem 限制同时在途的生成任务数
	sem chan struct{}
}

func NewResponseWorker(
	jobRepo repository.ResponseJobRepository,
	aiEntityRepo repository.AIEntityRepository,
	messageRepo chatRepository.MessageRepository,
	responseService *service.ResponseService,
	conf config.WorkerConfig,
) *ResponseWorker {
	concurrency := conf.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return &ResponseWorker{
		jobRepo:         jobRepo,
		aiEntityRepo:    aiEntityRepo,
		messageRepo:     messageRepo,
		responseService: responseService,
		conf:            conf,
		sem:             make(chan struct{}, concurrency),
	}
}

var _ mq.Handler = (*ResponseWorker)(nil)

// Handle 消费一条任务消息。返回 nil 即提交位点：
// 任务的成败都落在任务行状态上，重试由 outbox 重新投递驱动，不依赖 Kafka 重放。
func (w *ResponseWorker) Handle(ctx context.Context, msg mq.Message) error {
	jobId, err := mq.ParseResponseJobId(msg)
	if err != nil {
		zlog.Warn("discard malformed job message", zap.Error(err))
		return nil
	}

	job, err := w.jobRepo.GetById(ctx, jobId)
	if err != nil {
		zlog.Error("load response job failed", zap.Int64("job_id", jobId), zap.Error(err))
		return nil
	}
	if job == nil {
		return nil
	}

	// 先占并发额度再认领，认领后的任务不能在队列里干等
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		// 消费端在关停，不提交位点，重启后重新投递
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	claimed, err := w.jobRepo.TryMarkProcessing(ctx, job.Id, time.Now())
	if err != nil {
		zlog.Error("claim response job failed", zap.Int64("job_id", job.Id), zap.Error(err))
		return nil
	}
	if !claimed {
		// 重复投递或已被其他实例处理
		return nil
	}

	timeout := time.Duration(w.conf.JobTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	jobCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	w.process(jobCtx, job)
	return nil
}

func (w *ResponseWorker) process(ctx context.Context, job *entity.AIResponseJob) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error("response job panicked", zap.Int64("job_id", job.Id), zap.Any("panic", r))
			_ = w.jobRepo.MarkFailed(ctx, job.Id, fmt.Sprintf("panic: %v", r))
		}
	}()

	ai, trigger, skipReason := w.resolve(ctx, job)
	if skipReason != "" {
		w.skip(ctx, job, skipReason)
		return
	}

	// 前置校验：实体在线，房间任务要求实体仍在该房间
	if !w.checkPlacement(ai, job) {
		w.skip(ctx, job, SkipReasonPreCheck)
		return
	}
	if !w.responseService.ShouldAIRespond(ai, trigger) {
		w.skip(ctx, job, SkipReasonStrategy)
		return
	}

	var (
		reply *chatEntity.Message
		err   error
	)
	if job.RoomId.Valid {
		reply, err = w.responseService.GenerateRoomResponse(ctx, ai, job.RoomId.Int64, trigger)
	} else {
		reply, err = w.responseService.GenerateConversationResponse(ctx, ai, job.ConversationId.Int64, trigger)
	}
	if err != nil {
		w.retryOrFail(ctx, job, err)
		return
	}

	// 后置复核：生成期间实体下线或离开房间的回复必须撤回
	current, err := w.aiEntityRepo.GetById(ctx, job.AIEntityId.Int64)
	if err != nil || current == nil || !w.checkPlacement(current, job) {
		if deleted, dErr := w.messageRepo.Delete(ctx, reply.Id); dErr != nil {
			zlog.Error("retract stale ai reply failed", zap.Int64("message_id", reply.Id), zap.Error(dErr))
		} else if deleted {
			zlog.Info("stale ai reply retracted", zap.Int64("job_id", job.Id), zap.Int64("message_id", reply.Id))
		}
		w.skip(ctx, job, SkipReasonPostCheck)
		return
	}

	if err := w.jobRepo.MarkDone(ctx, job.Id, reply.Id); err != nil {
		zlog.Error("mark job done failed", zap.Int64("job_id", job.Id), zap.Error(err))
		return
	}
	zlog.Info("response job done",
		zap.Int64("job_id", job.Id),
		zap.Int64("ai_entity_id", job.AIEntityId.Int64),
		zap.Int64("result_msg_id", reply.Id))
}

func (w *ResponseWorker) resolve(ctx context.Context, job *entity.AIResponseJob) (*entity.AIEntity, *chatEntity.Message, string) {
	if !job.AIEntityId.Valid {
		return nil, nil, SkipReasonEntityMissing
	}
	ai, err := w.aiEntityRepo.GetById(ctx, job.AIEntityId.Int64)
	if err != nil {
		zlog.Error("load ai entity failed", zap.Int64("job_id", job.Id), zap.Error(err))
		return nil, nil, SkipReasonEntityMissing
	}
	if ai == nil {
		return nil, nil, SkipReasonEntityMissing
	}
	trigger, err := w.messageRepo.GetById(ctx, job.MessageId)
	if err != nil {
		zlog.Error("load trigger message failed", zap.Int64("job_id", job.Id), zap.Error(err))
		return nil, nil, SkipReasonTriggerMissing
	}
	if trigger == nil {
		return nil, nil, SkipReasonTriggerMissing
	}
	return ai, trigger, ""
}

func (w *ResponseWorker) checkPlacement(ai *entity.AIEntity, job *entity.AIResponseJob) bool {
	if !ai.IsOnline() {
		return false
	}
	if job.RoomId.Valid && !ai.InRoom(job.RoomId.Int64) {
		return false
	}
	return true
}

func (w *ResponseWorker) skip(ctx context.Context, job *entity.AIResponseJob, reason string) {
	if err := w.jobRepo.MarkSkipped(ctx, job.Id, reason); err != nil {
		zlog.Error("mark job skipped failed", zap.Int64("job_id", job.Id), zap.Error(err))
		return
	}
	zlog.Info("response job skipped", zap.Int64("job_id", job.Id), zap.String("reason", reason))
}

// retryOrFail 瞬时失败按 (retry_count+1)*30s 退避重试，耗尽后置终态。
// 入参非法不可能靠重试修复，直接硬失败。
func (w *ResponseWorker) retryOrFail(ctx context.Context, job *entity.AIResponseJob, cause error) {
	if xerr.IsKind(cause, xerr.KindValidation) {
		zlog.Error("response job failed on invalid input",
			zap.Int64("job_id", job.Id), zap.Error(cause))
		_ = w.jobRepo.MarkFailed(ctx, job.Id, cause.Error())
		return
	}

	maxAttempts := w.conf.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	// retry_count 只计生成侧重试，总执行次数不超过 maxAttempts
	if job.RetryCount >= maxAttempts-1 {
		zlog.Error("response job failed permanently",
			zap.Int64("job_id", job.Id), zap.Int("retry_count", job.RetryCount), zap.Error(cause))
		_ = w.jobRepo.MarkFailed(ctx, job.Id, cause.Error())
		return
	}
	nextAt := time.Now().Add(time.Duration(job.RetryCount+1) * 30 * time.Second)
	zlog.Warn("response job scheduled for retry",
		zap.Int64("job_id", job.Id), zap.Int("retry_count", job.RetryCount),
		zap.Time("next_retry_at", nextAt), zap.Error(cause))
	_ = w.jobRepo.MarkRetry(ctx, job.Id, nextAt, cause.Error())
}
