package pipeline

import (
	"context"
	"fmt"

	"EduLink/internal/modules/material/domain/repository"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
)

type AnswerRequest struct {
	Question   string
	CourseId   string // 课程范围检索；与 MaterialId 二选一
	MaterialId string // 单个资料范围检索
	TopK       int
	// ScoreThreshold 为 0 时使用流水线配置的阈值
	ScoreThreshold float64
}

type SourceRef struct {
	MaterialId string  `json:"material_id"`
	Title      string  `json:"title"`
	SeqIndex   int     `json:"seq_index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type AnswerResult struct {
	Answer       string      `json:"answer"`
	IsOutOfScope bool        `json:"is_out_of_scope"`
	Confidence   float64     `json:"confidence"`
	Sources      []SourceRef `json:"sources"`
	Suggestions  []string    `json:"suggestions"`
	DurationMs   int64       `json:"duration_ms"`
}

// AnswerPipeline 检索问答流水线：问题向量化 → 候选召回 → 相似度排序 → 组装上下文并生成回答
type AnswerPipeline struct {
	embedder     einoEmbedding.Embedder
	chatModel    model.BaseChatModel
	chunkRepo    repository.ChunkRepository
	materialRepo repository.MaterialRepository

	topK            int
	scoreThreshold  float64
	maxContextChars int

	r compose.Runnable[*AnswerRequest, *AnswerResult]
}

func NewAnswerPipeline(embedder einoEmbedding.Embedder, chatModel model.BaseChatModel, chunkRepo repository.ChunkRepository, materialRepo repository.MaterialRepository, topK int, scoreThreshold float64, maxContextChars int) (*AnswerPipeline, error) {
	if embedder == nil || chunkRepo == nil || materialRepo == nil {
		return nil, fmt.Errorf("answer pipeline 依赖不完整")
	}
	if topK <= 0 {
		topK = 5
	}
	if scoreThreshold <= 0 {
		scoreThreshold = 0.7
	}
	if maxContextChars <= 0 {
		maxContextChars = 8000
	}
	p := &AnswerPipeline{
		embedder:        embedder,
		chatModel:       chatModel,
		chunkRepo:       chunkRepo,
		materialRepo:    materialRepo,
		topK:            topK,
		scoreThreshold:  scoreThreshold,
		maxContextChars: maxContextChars,
	}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

func (p *AnswerPipeline) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	return p.r.Invoke(ctx, &req)
}
