package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"EduLink/internal/modules/material/application/dto/respond"
	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/domain/repository"
	"EduLink/pkg/cache"
	"EduLink/pkg/zlog"

	"go.uber.org/zap"
)

const (
	materialCacheTTL = 5 * time.Minute
	listCacheTTL     = 60 * time.Second
)

// MaterialService 资料读模型与管理操作
type MaterialService interface {
	Get(ctx context.Context, id string) (*respond.MaterialRespond, error)
	ListByCourse(ctx context.Context, courseId string) ([]respond.MaterialRespond, error)
	// RetryFailed 管理端动作：失败资料清理旧块后重新入队
	RetryFailed(ctx context.Context, id string) error
	// PurgeMaterial 管理端删除：清理块、队列条目与 blob 后删除元数据
	PurgeMaterial(ctx context.Context, id string) error
}

type materialServiceImpl struct {
	store        BlobStore
	materialRepo repository.MaterialRepository
	chunkRepo    repository.ChunkRepository
	queueRepo    repository.ProcessQueueRepository
	cache        *cache.Cache
}

func NewMaterialService(store BlobStore, materialRepo repository.MaterialRepository, chunkRepo repository.ChunkRepository, queueRepo repository.ProcessQueueRepository, c *cache.Cache) MaterialService {
	return &materialServiceImpl{
		store:        store,
		materialRepo: materialRepo,
		chunkRepo:    chunkRepo,
		queueRepo:    queueRepo,
		cache:        c,
	}
}

func (s *materialServiceImpl) Get(ctx context.Context, id string) (*respond.MaterialRespond, error) {
	key := "material:" + id
	if v, ok := s.cache.Get(key); ok {
		if resp, ok := v.(*respond.MaterialRespond); ok {
			return resp, nil
		}
	}

	m, err := s.materialRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toMaterialRespond(m)
	// 终态才缓存，处理中的状态要让前端轮询到最新值
	if m.Status == material.StatusCompleted || m.Status == material.StatusFailed {
		s.cache.Set(key, resp, materialCacheTTL)
	}
	return resp, nil
}

func (s *materialServiceImpl) ListByCourse(ctx context.Context, courseId string) ([]respond.MaterialRespond, error) {
	key := "materials:list:" + hashKey(courseId)
	if v, ok := s.cache.Get(key); ok {
		if list, ok := v.([]respond.MaterialRespond); ok {
			return list, nil
		}
	}

	mats, err := s.materialRepo.ListByCourse(ctx, courseId)
	if err != nil {
		return nil, err
	}
	list := make([]respond.MaterialRespond, 0, len(mats))
	for i := range mats {
		list = append(list, *toMaterialRespond(&mats[i]))
	}
	s.cache.Set(key, list, listCacheTTL)
	return list, nil
}

func (s *materialServiceImpl) RetryFailed(ctx context.Context, id string) error {
	m, err := s.materialRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != material.StatusFailed {
		return &material.ValidationError{Field: "status", Reason: "仅失败的资料可以重试"}
	}

	// 清掉上次部分写入的块，重置状态后重新入队
	if err := s.chunkRepo.DeleteByMaterial(ctx, id); err != nil {
		return err
	}
	if err := s.materialRepo.UpdateStatus(ctx, id, material.StatusPending, ""); err != nil {
		return err
	}
	if err := s.queueRepo.Enqueue(ctx, id, time.Now()); err != nil {
		return err
	}

	s.invalidate(id)
	zlog.Info("失败资料已重新入队", zap.String("material_id", id))
	return nil
}

func (s *materialServiceImpl) PurgeMaterial(ctx context.Context, id string) error {
	m, err := s.materialRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.queueRepo.DeleteByMaterial(ctx, id); err != nil {
		return err
	}
	if err := s.chunkRepo.DeleteByMaterial(ctx, id); err != nil {
		return err
	}
	// blob 删除尽力而为，失败不阻断元数据清理
	if m.BlobPublicId != "" {
		if err := s.store.Delete(ctx, m.BlobPublicId); err != nil {
			zlog.Warn("blob 删除失败",
				zap.String("material_id", id),
				zap.String("public_id", m.BlobPublicId),
				zap.Error(err))
		}
	}
	if err := s.materialRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(id)
	zlog.Info("资料已清理", zap.String("material_id", id))
	return nil
}

func (s *materialServiceImpl) invalidate(id string) {
	s.cache.Delete("material:" + id)
	s.cache.DeletePattern("^materials:list:")
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
