package service

import (
	"context"
	"fmt"

	"EduLink/internal/modules/material/application/dto/request"
	"EduLink/internal/modules/material/application/dto/respond"
	"EduLink/internal/modules/material/infrastructure/pipeline"
)

// QueryService 课程问答服务
type QueryService interface {
	Ask(ctx context.Context, req request.QueryRequest) (*respond.AnswerRespond, error)
}

type queryServiceImpl struct {
	pipeline *pipeline.AnswerPipeline
}

func NewQueryService(p *pipeline.AnswerPipeline) QueryService {
	return &queryServiceImpl{pipeline: p}
}

func (s *queryServiceImpl) Ask(ctx context.Context, req request.QueryRequest) (*respond.AnswerRespond, error) {
	if s.pipeline == nil {
		return nil, fmt.Errorf("answer pipeline is nil")
	}

	result, err := s.pipeline.Answer(ctx, pipeline.AnswerRequest{
		Question:   req.Question,
		CourseId:   req.CourseId,
		MaterialId:     req.MaterialId,
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}

	return &respond.AnswerRespond{
		Answer:       result.Answer,
		IsOutOfScope: result.IsOutOfScope,
		Confidence:   result.Confidence,
		Sources:      result.Sources,
		Suggestions:  result.Suggestions,
		DurationMs:   result.DurationMs,
	}, nil
}
