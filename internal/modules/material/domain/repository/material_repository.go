package repository

import (
	"context"

	"EduLink/internal/modules/material/domain/material"
)

// MaterialRepository 课程资料元数据（MySQL）的持久化
type MaterialRepository interface {
	Create(ctx context.Context, m *material.Material) error
	GetByID(ctx context.Context, id string) (*material.Material, error)
	ListByCourse(ctx context.Context, courseId string) ([]material.Material, error)
	// UpdateStatus 更新状态与错误信息；errMsg 仅在 failed 时有意义
	UpdateStatus(ctx context.Context, id string, status string, errMsg string) error
	Delete(ctx context.Context, id string) error
}
