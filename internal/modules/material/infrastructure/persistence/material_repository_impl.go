package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/domain/repository"

	"gorm.io/gorm"
)

type materialRepositoryImpl struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) repository.MaterialRepository {
	return &materialRepositoryImpl{db: db}
}

func (r *materialRepositoryImpl) Create(ctx context.Context, m *material.Material) error {
	if m == nil {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return &material.DatabaseError{Op: "material.create", Err: err}
	}
	return nil
}

func (r *materialRepositoryImpl) GetByID(ctx context.Context, id string) (*material.Material, error) {
	var m material.Material
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err == nil {
		return &m, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, material.ErrNotFound
	}
	return nil, &material.DatabaseError{Op: "material.get", Err: err}
}

func (r *materialRepositoryImpl) ListByCourse(ctx context.Context, courseId string) ([]material.Material, error) {
	var out []material.Material
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseId).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, &material.DatabaseError{Op: "material.list", Err: err}
	}
	return out, nil
}

func (r *materialRepositoryImpl) UpdateStatus(ctx context.Context, id string, status string, errMsg string) error {
	errMsg = strings.TrimSpace(errMsg)
	if len(errMsg) > 255 {
		errMsg = errMsg[:255]
	}
	updates := map[string]any{
		"status":     status,
		"error_msg":  errMsg,
		"updated_at": time.Now(),
	}
	res := r.db.WithContext(ctx).Model(&material.Material{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return &material.DatabaseError{Op: "material.update_status", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return material.ErrNotFound
	}
	return nil
}

func (r *materialRepositoryImpl) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&material.Material{}).Error; err != nil {
		return &material.DatabaseError{Op: "material.delete", Err: err}
	}
	return nil
}
