package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/domain/repository"
	"EduLink/internal/modules/material/infrastructure/mq"
	"EduLink/internal/modules/material/infrastructure/pipeline"
	"EduLink/pkg/zlog"

	"go.uber.org/zap"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxPoll      = 60 * time.Second
	defaultMaxAttempts  = 5
	defaultVisibility   = 10 * time.Minute
	defaultGrace        = 2 * time.Second

	entryRetryBase = 30 * time.Second
	entryRetryMax  = 30 * time.Minute
)

// Processor 资料处理入口，由流水线实现；测试可注入假实现
type Processor interface {
	Process(ctx context.Context, req pipeline.ProcessRequest) (*pipeline.ProcessResult, error)
}

type WorkerConfig struct {
	PollInterval time.Duration
	MaxPoll      time.Duration
	MaxAttempts  int
	Visibility   time.Duration
	Grace        time.Duration
}

type WorkerStatus struct {
	IsRunning         bool          `json:"is_running"`
	PollInterval      time.Duration `json:"poll_interval"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
}

// ProcessWorker 单飞行度后台 worker：轮询队列领取条目并驱动处理流水线。
// 轮询出错时间隔 ×1.5 退避（上限 60s），成功后回落到基础间隔
type ProcessWorker struct {
	queueRepo    repository.ProcessQueueRepository
	materialRepo repository.MaterialRepository
	processor    Processor
	statusPub    *mq.StatusPublisher
	conf         WorkerConfig

	// 测试注入点
	now func() time.Time

	mu       sync.Mutex
	running  bool
	interval time.Duration
	errCount int

	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

func NewProcessWorker(queueRepo repository.ProcessQueueRepository, materialRepo repository.MaterialRepository, processor Processor, statusPub *mq.StatusPublisher, conf WorkerConfig) *ProcessWorker {
	if conf.PollInterval <= 0 {
		conf.PollInterval = defaultPollInterval
	}
	if conf.MaxPoll <= 0 {
		conf.MaxPoll = defaultMaxPoll
	}
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = defaultMaxAttempts
	}
	if conf.Visibility <= 0 {
		conf.Visibility = defaultVisibility
	}
	if conf.Grace <= 0 {
		conf.Grace = defaultGrace
	}
	return &ProcessWorker{
		queueRepo:    queueRepo,
		materialRepo: materialRepo,
		processor:    processor,
		statusPub:    statusPub,
		conf:         conf,
		now:          time.Now,
		interval:     conf.PollInterval,
		trigger:      make(chan struct{}, 1),
	}
}

func (w *ProcessWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("worker 已在运行")
	}
	if w.queueRepo == nil || w.materialRepo == nil || w.processor == nil {
		return errors.New("worker 依赖不完整")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	w.errCount = 0
	w.interval = w.conf.PollInterval

	go w.loop(ctx)
	zlog.Info("资料处理 worker 已启动", zap.Duration("poll_interval", w.conf.PollInterval))
	return nil
}

// Stop 取消轮询并等待在途任务，最多等待宽限期；
// 未完成的条目由可见性窗口到期后重新投递
func (w *ProcessWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		zlog.Info("资料处理 worker 已停止")
	case <-time.After(w.conf.Grace):
		zlog.Warn("资料处理 worker 停止超时，放弃在途任务")
	}
}

// TriggerNow 立即唤醒一次轮询（管理端动作）
func (w *ProcessWorker) TriggerNow() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *ProcessWorker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{
		IsRunning:         w.running,
		PollInterval:      w.interval,
		ConsecutiveErrors: w.errCount,
	}
}

func (w *ProcessWorker) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-w.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		worked, err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		timer.Reset(w.nextDelay(worked, err))
	}
}

// nextDelay 根据本轮结果推进退避状态并给出下次轮询的等待时长：
// 出错（含流水线瞬时失败）间隔 ×1.5 至上限，成功回落；有活干且无错立刻领下一条
func (w *ProcessWorker) nextDelay(worked bool, err error) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.errCount++
		w.interval = w.interval * 3 / 2
		if w.interval > w.conf.MaxPoll {
			w.interval = w.conf.MaxPoll
		}
		return w.interval
	}
	w.errCount = 0
	w.interval = w.conf.PollInterval
	if worked {
		return 0
	}
	return w.interval
}

// runOnce 领取并处理一条；返回是否领到条目
func (w *ProcessWorker) runOnce(ctx context.Context) (bool, error) {
	entry, err := w.queueRepo.ClaimNext(ctx, w.now(), w.conf.Visibility)
	if err != nil {
		zlog.Warn("队列领取失败", zap.Error(err))
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	m, err := w.materialRepo.GetByID(ctx, entry.MaterialId)
	if err != nil {
		if errors.Is(err, material.ErrNotFound) {
			// 资料已被删除，条目作废
			_ = w.queueRepo.Complete(ctx, entry.Id)
			return true, nil
		}
		return true, err
	}

	if err := w.materialRepo.UpdateStatus(ctx, m.Id, material.StatusProcessing, ""); err != nil {
		return true, err
	}

	_, procErr := w.processor.Process(ctx, pipeline.ProcessRequest{
		MaterialId: m.Id,
		BlobURL:    m.BlobURL,
	})
	if procErr == nil {
		if err := w.queueRepo.Complete(ctx, entry.Id); err != nil {
			return true, err
		}
		if err := w.materialRepo.UpdateStatus(ctx, m.Id, material.StatusCompleted, ""); err != nil {
			return true, err
		}
		w.statusPub.Publish(ctx, m.Id, material.StatusCompleted, "")
		return true, nil
	}

	if ctx.Err() != nil {
		// 关停中断，条目留在队列里等可见性窗口到期
		return true, nil
	}

	if !material.IsTransient(procErr) {
		// 永久错误：不再重试，直接标记失败
		_ = w.queueRepo.Complete(ctx, entry.Id)
		_ = w.materialRepo.UpdateStatus(ctx, m.Id, material.StatusFailed, procErr.Error())
		w.statusPub.Publish(ctx, m.Id, material.StatusFailed, procErr.Error())
		zlog.Warn("资料处理遇到永久错误",
			zap.String("material_id", m.Id), zap.Error(procErr))
		return true, nil
	}

	nextRetry := w.now().Add(entryRetryDelay(entry.Attempts))
	exhausted, failErr := w.queueRepo.Fail(ctx, entry.Id, procErr.Error(), nextRetry, w.conf.MaxAttempts)
	if failErr != nil {
		return true, failErr
	}
	if exhausted {
		_ = w.materialRepo.UpdateStatus(ctx, m.Id, material.StatusFailed, procErr.Error())
		w.statusPub.Publish(ctx, m.Id, material.StatusFailed, procErr.Error())
		zlog.Warn("资料处理重试次数耗尽",
			zap.String("material_id", m.Id), zap.Int("attempts", entry.Attempts+1), zap.Error(procErr))
	} else {
		// 回到 pending 等待重试，资料状态退回 pending 供前端轮询
		_ = w.materialRepo.UpdateStatus(ctx, m.Id, material.StatusPending, procErr.Error())
		zlog.Info("资料处理失败，等待重试",
			zap.String("material_id", m.Id),
			zap.Int("attempts", entry.Attempts+1),
			zap.Time("next_retry_at", nextRetry),
			zap.Error(procErr))
	}
	// 瞬时失败上抛，让轮询间隔也参与退避
	return true, procErr
}

// entryRetryDelay 30s·2^attempts，上限 30m
func entryRetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := entryRetryBase
	for i := 0; i < attempts && d < entryRetryMax; i++ {
		d *= 2
	}
	if d > entryRetryMax {
		d = entryRetryMax
	}
	return d
}
