package service

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"EduLink/internal/modules/material/application/dto/respond"
	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/domain/repository"
	"EduLink/internal/modules/material/infrastructure/objectstore"
	"EduLink/pkg/cache"
	"EduLink/pkg/util"
	"EduLink/pkg/zlog"

	"go.uber.org/zap"
)

const maxUploadBytes = 20 << 20 // 20MB

// BlobStore 上传事务依赖的对象存储操作
type BlobStore interface {
	Upload(ctx context.Context, filename string, data []byte) (*objectstore.UploadResult, error)
	Delete(ctx context.Context, publicId string) error
}

// UploadService 上传事务协调器：blob 上传 → 元数据落库 → 入队处理；
// 落库失败时补偿删除已上传的 blob
type UploadService interface {
	Upload(ctx context.Context, title, courseId, filename string, data []byte) (*respond.MaterialRespond, error)
}

type uploadServiceImpl struct {
	store        BlobStore
	materialRepo repository.MaterialRepository
	queueRepo    repository.ProcessQueueRepository
	cache        *cache.Cache
}

func NewUploadService(store BlobStore, materialRepo repository.MaterialRepository, queueRepo repository.ProcessQueueRepository, c *cache.Cache) UploadService {
	return &uploadServiceImpl{store: store, materialRepo: materialRepo, queueRepo: queueRepo, cache: c}
}

func (s *uploadServiceImpl) Upload(ctx context.Context, title, courseId, filename string, data []byte) (*respond.MaterialRespond, error) {
	// 1. 本地校验，不通过则不发起任何网络调用
	title = strings.TrimSpace(title)
	courseId = strings.TrimSpace(courseId)
	filename = strings.TrimSpace(filename)
	if title == "" {
		return nil, &material.ValidationError{Field: "title", Reason: "不能为空"}
	}
	if courseId == "" {
		return nil, &material.ValidationError{Field: "courseId", Reason: "不能为空"}
	}
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return nil, &material.ValidationError{Field: "file", Reason: "仅支持 PDF 文件"}
	}
	if len(data) == 0 {
		return nil, &material.ValidationError{Field: "file", Reason: "文件内容为空"}
	}
	if len(data) > maxUploadBytes {
		return nil, &material.ValidationError{Field: "file", Reason: "文件超过 20MB 上限"}
	}

	// 2. 上传 blob
	blob, err := s.store.Upload(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	// 3. 元数据落库；失败则补偿删除 blob（尽力而为，不掩盖原始错误）
	now := time.Now()
	m := &material.Material{
		Id:           util.GenerateID("mat"),
		Title:        title,
		CourseId:     courseId,
		BlobURL:      blob.SecureURL,
		BlobPublicId: blob.PublicId,
		Status:       material.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.materialRepo.Create(ctx, m); err != nil {
		if delErr := s.store.Delete(ctx, blob.PublicId); delErr != nil {
			zlog.Warn("补偿删除 blob 失败",
				zap.String("public_id", blob.PublicId), zap.Error(delErr))
		}
		return nil, err
	}

	// 4. 幂等入队，交给后台 worker 处理
	if err := s.queueRepo.Enqueue(ctx, m.Id, now); err != nil {
		zlog.Error("资料入队失败，等待管理端重试",
			zap.String("material_id", m.Id), zap.Error(err))
		return nil, err
	}

	s.cache.DeletePattern("^materials:list:")

	zlog.Info("资料上传成功",
		zap.String("material_id", m.Id),
		zap.String("course_id", courseId),
		zap.Int("bytes", len(data)),
	)
	return toMaterialRespond(m), nil
}

func toMaterialRespond(m *material.Material) *respond.MaterialRespond {
	return &respond.MaterialRespond{
		Id:        m.Id,
		Title:     m.Title,
		CourseId:  m.CourseId,
		BlobURL:   m.BlobURL,
		Status:    m.Status,
		ErrorMsg:  m.ErrorMsg,
		CreatedAt: m.CreatedAt.Unix(),
		UpdatedAt: m.UpdatedAt.Unix(),
	}
}
