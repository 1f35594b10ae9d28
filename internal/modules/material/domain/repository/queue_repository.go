package repository

import (
	"context"
	"time"

	"EduLink/internal/modules/material/domain/material"
)

// ProcessQueueRepository 持久化工作队列（MySQL 行级锁实现，SKIP LOCKED 领取）
type ProcessQueueRepository interface {
	// Enqueue 幂等入队：同一 material_id 已存在条目时不重复插入
	Enqueue(ctx context.Context, materialId string, now time.Time) error
	// ClaimNext 领取一条到期条目并将 next_retry_at 推进一个可见性窗口，
	// worker 崩溃后窗口到期的条目会被重新领取；无可领取时返回 (nil, nil)
	ClaimNext(ctx context.Context, now time.Time, visibility time.Duration) (*material.ProcessQueueEntry, error)
	// Complete 处理成功，删除队列条目
	Complete(ctx context.Context, id int64) error
	// Fail 处理失败：未达最大尝试次数时回到 pending 并设置 next_retry_at，
	// 达到上限时删除条目并由调用方将资料置为 failed；返回是否已耗尽重试
	Fail(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time, maxAttempts int) (exhausted bool, err error)
	// PendingCount 当前待处理（含等待重试）条目数
	PendingCount(ctx context.Context) (int64, error)
	// DeleteByMaterial 资料删除时清理其队列条目
	DeleteByMaterial(ctx context.Context, materialId string) error
}
