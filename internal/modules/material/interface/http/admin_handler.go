package http

import (
	"EduLink/internal/modules/material/application/dto/respond"
	"EduLink/internal/modules/material/application/service"
	"EduLink/internal/modules/material/domain/repository"
	"EduLink/internal/modules/material/infrastructure/queue"
	"EduLink/pkg/back"
	"EduLink/pkg/xerr"
	"EduLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler 管理端操作：失败重试、资料清理、worker 状态与手动触发
type AdminHandler struct {
	materialSvc service.MaterialService
	queueRepo   repository.ProcessQueueRepository
	worker      *queue.ProcessWorker
}

func NewAdminHandler(materialSvc service.MaterialService, queueRepo repository.ProcessQueueRepository, worker *queue.ProcessWorker) *AdminHandler {
	return &AdminHandler{materialSvc: materialSvc, queueRepo: queueRepo, worker: worker}
}

// RetryMaterial 失败资料重新入队并唤醒 worker
//
// 路由: POST /admin/material/:id/retry
func (h *AdminHandler) RetryMaterial(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if err := h.materialSvc.RetryFailed(c.Request.Context(), id); err != nil {
		zlog.Warn("重试失败", zap.String("material_id", id), zap.Error(err))
		back.Result(c, nil, mapDomainErr(err))
		return
	}
	h.worker.TriggerNow()
	back.Success(c, nil)
}

// PurgeMaterial 清理资料及其块、队列条目与 blob
//
// 路由: DELETE /admin/material/:id
func (h *AdminHandler) PurgeMaterial(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	err := h.materialSvc.PurgeMaterial(c.Request.Context(), id)
	back.Result(c, nil, mapDomainErr(err))
}

// WorkerStatus 查看 worker 运行状态与积压量
//
// 路由: GET /admin/worker/status
func (h *AdminHandler) WorkerStatus(c *gin.Context) {
	st := h.worker.Status()
	pending, err := h.queueRepo.PendingCount(c.Request.Context())
	if err != nil {
		zlog.Warn("查询队列积压失败", zap.Error(err))
	}
	back.Success(c, respond.WorkerStatusRespond{
		IsRunning:         st.IsRunning,
		PollIntervalMs:    st.PollInterval.Milliseconds(),
		ConsecutiveErrors: st.ConsecutiveErrors,
		PendingCount:      pending,
	})
}

// TriggerWorker 立即触发一次轮询
//
// 路由: POST /admin/worker/trigger
func (h *AdminHandler) TriggerWorker(c *gin.Context) {
	h.worker.TriggerNow()
	back.Success(c, nil)
}
