package persistence

import (
	"context"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/domain/repository"

	"gorm.io/gorm"
)

type chunkRepositoryImpl struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) repository.ChunkRepository {
	return &chunkRepositoryImpl{db: db}
}

// ReplaceForMaterial 事务内先删旧块再写新块，重复处理同一资料时不会产生重复数据
func (r *chunkRepositoryImpl) ReplaceForMaterial(ctx context.Context, materialId string, chunks []material.MaterialChunk) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("material_id = ?", materialId).Delete(&material.MaterialChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&chunks, 200).Error
	})
	if err != nil {
		return &material.DatabaseError{Op: "chunk.replace", Err: err}
	}
	return nil
}

func (r *chunkRepositoryImpl) ListByMaterial(ctx context.Context, materialId string) ([]material.MaterialChunk, error) {
	var out []material.MaterialChunk
	err := r.db.WithContext(ctx).
		Where("material_id = ?", materialId).
		Order("seq_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, &material.DatabaseError{Op: "chunk.list_by_material", Err: err}
	}
	return out, nil
}

// ListByCourse 只取已完成资料的块：处理中/失败的资料不参与检索
func (r *chunkRepositoryImpl) ListByCourse(ctx context.Context, courseId string) ([]material.MaterialChunk, error) {
	var out []material.MaterialChunk
	err := r.db.WithContext(ctx).
		Joins("JOIN edu_material ON edu_material.id = edu_material_chunk.material_id").
		Where("edu_material.course_id = ? AND edu_material.status = ?", courseId, material.StatusCompleted).
		Order("edu_material_chunk.material_id ASC, edu_material_chunk.seq_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, &material.DatabaseError{Op: "chunk.list_by_course", Err: err}
	}
	return out, nil
}

func (r *chunkRepositoryImpl) DeleteByMaterial(ctx context.Context, materialId string) error {
	if err := r.db.WithContext(ctx).Where("material_id = ?", materialId).Delete(&material.MaterialChunk{}).Error; err != nil {
		return &material.DatabaseError{Op: "chunk.delete", Err: err}
	}
	return nil
}
