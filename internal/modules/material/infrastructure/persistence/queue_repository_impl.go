package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type processQueueRepositoryImpl struct {
	db *gorm.DB
}

func NewProcessQueueRepository(db *gorm.DB) repository.ProcessQueueRepository {
	return &processQueueRepositoryImpl{db: db}
}

// Enqueue 借助 material_id 唯一索引做幂等：已存在条目时 DoNothing
func (r *processQueueRepositoryImpl) Enqueue(ctx context.Context, materialId string, now time.Time) error {
	entry := material.ProcessQueueEntry{
		MaterialId: materialId,
		Status:     material.QueuePending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "material_id"}},
			DoNothing: true,
		}).
		Create(&entry).Error
	if err != nil {
		return &material.DatabaseError{Op: "queue.enqueue", Err: err}
	}
	return nil
}

// ClaimNext 事务内 SKIP LOCKED 抢占一条到期条目并置为 processing，
// 同时把 next_retry_at 推进一个可见性窗口：worker 中途崩溃时，
// 窗口到期的 processing 条目会重新变为可领取
func (r *processQueueRepositoryImpl) ClaimNext(ctx context.Context, now time.Time, visibility time.Duration) (*material.ProcessQueueEntry, error) {
	if visibility <= 0 {
		visibility = 10 * time.Minute
	}
	var claimed *material.ProcessQueueEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry material.ProcessQueueEntry
		err := tx.Model(&material.ProcessQueueEntry{}).
			Where("status IN ?", []int8{material.QueuePending, material.QueueProcessing}).
			Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
			Order("id ASC").
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		updates := map[string]any{
			"status":        material.QueueProcessing,
			"claimed_at":    now,
			"next_retry_at": now.Add(visibility),
			"updated_at":    now,
		}
		if err := tx.Model(&material.ProcessQueueEntry{}).Where("id = ?", entry.Id).Updates(updates).Error; err != nil {
			return err
		}
		entry.Status = material.QueueProcessing
		claimed = &entry
		return nil
	})
	if err != nil {
		return nil, &material.DatabaseError{Op: "queue.claim", Err: err}
	}
	return claimed, nil
}

func (r *processQueueRepositoryImpl) Complete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&material.ProcessQueueEntry{}).Error; err != nil {
		return &material.DatabaseError{Op: "queue.complete", Err: err}
	}
	return nil
}

// Fail 失败回退：尝试次数未耗尽时回到 pending 等待 next_retry_at，
// 耗尽时删除条目并返回 exhausted=true，由调用方落实资料的 failed 状态
func (r *processQueueRepositoryImpl) Fail(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time, maxAttempts int) (bool, error) {
	errMsg = strings.TrimSpace(errMsg)
	if len(errMsg) > 255 {
		errMsg = errMsg[:255]
	}

	exhausted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry material.ProcessQueueEntry
		if err := tx.Where("id = ?", id).Take(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if entry.Attempts+1 >= maxAttempts {
			exhausted = true
			return tx.Where("id = ?", id).Delete(&material.ProcessQueueEntry{}).Error
		}

		updates := map[string]any{
			"status":        material.QueuePending,
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    errMsg,
			"next_retry_at": nextRetryAt,
			"claimed_at":    nil,
			"updated_at":    time.Now(),
		}
		return tx.Model(&material.ProcessQueueEntry{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return false, &material.DatabaseError{Op: "queue.fail", Err: err}
	}
	return exhausted, nil
}

func (r *processQueueRepositoryImpl) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&material.ProcessQueueEntry{}).
		Where("status = ?", material.QueuePending).
		Count(&count).Error
	if err != nil {
		return 0, &material.DatabaseError{Op: "queue.pending_count", Err: err}
	}
	return count, nil
}

func (r *processQueueRepositoryImpl) DeleteByMaterial(ctx context.Context, materialId string) error {
	if err := r.db.WithContext(ctx).Where("material_id = ?", materialId).Delete(&material.ProcessQueueEntry{}).Error; err != nil {
		return &material.DatabaseError{Op: "queue.delete_by_material", Err: err}
	}
	return nil
}
