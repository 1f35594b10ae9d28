package http

import (
	"errors"

	"EduLink/internal/modules/material/application/dto/request"
	"EduLink/internal/modules/material/application/service"
	"EduLink/internal/modules/material/domain/material"
	"EduLink/pkg/back"
	"EduLink/pkg/xerr"
	"EduLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueryHandler 课程问答 HTTP Handler
type QueryHandler struct {
	querySvc service.QueryService
}

func NewQueryHandler(querySvc service.QueryService) *QueryHandler {
	return &QueryHandler{querySvc: querySvc}
}

// Ask 基于课程资料回答问题
//
// 路由: POST /material/query
func (h *QueryHandler) Ask(c *gin.Context) {
	var req request.QueryRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	data, err := h.querySvc.Ask(c.Request.Context(), req)
	if err != nil {
		zlog.Warn("问答失败", zap.String("question", req.Question), zap.Error(err))
		var valErr *material.ValidationError
		if errors.As(err, &valErr) {
			back.Error(c, xerr.BadRequest, valErr.Error())
			return
		}
		// 模型或向量化不可用时给统一兜底文案
		back.Error(c, xerr.ErrQueryFallback.Code, xerr.ErrQueryFallback.Message)
		return
	}
	back.Success(c, data)
}
