package http

import (
	"errors"
	"io"

	"EduLink/internal/modules/material/application/dto/request"
	"EduLink/internal/modules/material/application/service"
	"EduLink/internal/modules/material/domain/material"
	"EduLink/pkg/back"
	"EduLink/pkg/xerr"
	"EduLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaterialHandler 课程资料 HTTP Handler
type MaterialHandler struct {
	uploadSvc   service.UploadService
	materialSvc service.MaterialService
}

func NewMaterialHandler(uploadSvc service.UploadService, materialSvc service.MaterialService) *MaterialHandler {
	return &MaterialHandler{uploadSvc: uploadSvc, materialSvc: materialSvc}
}

// Upload 上传课程资料
//
// 路由: POST /material/upload（multipart: title, courseId, file）
func (h *MaterialHandler) Upload(c *gin.Context) {
	var req request.UploadMaterialRequest
	if err := c.ShouldBind(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		back.Error(c, xerr.BadRequest, "缺少上传文件")
		return
	}
	f, err := fh.Open()
	if err != nil {
		back.Error(c, xerr.BadRequest, "文件读取失败")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		back.Error(c, xerr.BadRequest, "文件读取失败")
		return
	}

	resp, err := h.uploadSvc.Upload(c.Request.Context(), req.Title, req.CourseId, fh.Filename, data)
	if err != nil {
		zlog.Warn("上传失败", zap.String("title", req.Title), zap.Error(err))
	}
	back.Result(c, resp, mapDomainErr(err))
}

// Get 查询单个资料（前端轮询处理进度）
//
// 路由: GET /material/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	resp, err := h.materialSvc.Get(c.Request.Context(), id)
	back.Result(c, resp, mapDomainErr(err))
}

// List 按课程查询资料列表
//
// 路由: GET /material/list?courseId=xxx
func (h *MaterialHandler) List(c *gin.Context) {
	var req request.ListMaterialRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	resp, err := h.materialSvc.ListByCourse(c.Request.Context(), req.CourseId)
	back.Result(c, resp, mapDomainErr(err))
}

// mapDomainErr 领域错误转为统一错误码；内部细节不外泄
func mapDomainErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, material.ErrNotFound) {
		return xerr.New(xerr.NotFound, "资料不存在")
	}
	var valErr *material.ValidationError
	if errors.As(err, &valErr) {
		return xerr.New(xerr.BadRequest, valErr.Error())
	}
	var rateErr *material.RateLimitError
	if errors.As(err, &rateErr) {
		return xerr.New(xerr.TooManyRequests, "请求过于频繁，请稍后再试")
	}
	return xerr.ErrServerError
}
