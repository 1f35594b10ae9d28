package repository

import (
	"context"

	"EduLink/internal/modules/material/domain/material"
)

// ChunkRepository 文本块与向量记录的持久化
type ChunkRepository interface {
	// ReplaceForMaterial 覆盖写：先删除该资料的旧块，再批量写入新块（事务内完成，保证重试幂等）
	ReplaceForMaterial(ctx context.Context, materialId string, chunks []material.MaterialChunk) error
	ListByMaterial(ctx context.Context, materialId string) ([]material.MaterialChunk, error)
	// ListByCourse 取某课程已完成资料的全部块，供检索侧做相似度计算
	ListByCourse(ctx context.Context, courseId string) ([]material.MaterialChunk, error)
	DeleteByMaterial(ctx context.Context, materialId string) error
}
