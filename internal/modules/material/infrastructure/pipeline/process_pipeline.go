package pipeline

import (
	"context"
	"fmt"

	"EduLink/internal/modules/material/domain/repository"
	"EduLink/internal/modules/material/infrastructure/chunking"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
)

// BlobDownloader 拉取对象存储中的原始文件；实现内部自带重试
type BlobDownloader interface {
	Download(ctx context.Context, blobURL string) ([]byte, error)
}

type ProcessRequest struct {
	MaterialId string
	BlobURL    string
}

type ProcessResult struct {
	MaterialId string `json:"material_id"`
	Chunks     int    `json:"chunks"`
	TextChars  int    `json:"text_chars"`
	DurationMs int64  `json:"duration_ms"`
}

// ProcessPipeline 资料处理流水线：下载 → 抽取 → 归一化 → 切分 → 向量化 → 落库
type ProcessPipeline struct {
	downloader BlobDownloader
	chunker    *chunking.ParagraphChunker
	embedder   einoEmbedding.Embedder
	chunkRepo  repository.ChunkRepository
	vectorDim  int

	r compose.Runnable[*ProcessRequest, *ProcessResult]
}

func NewProcessPipeline(downloader BlobDownloader, chunker *chunking.ParagraphChunker, embedder einoEmbedding.Embedder, chunkRepo repository.ChunkRepository, vectorDim int) (*ProcessPipeline, error) {
	if downloader == nil || chunker == nil || embedder == nil || chunkRepo == nil {
		return nil, fmt.Errorf("process pipeline 依赖不完整")
	}
	p := &ProcessPipeline{
		downloader: downloader,
		chunker:    chunker,
		embedder:   embedder,
		chunkRepo:  chunkRepo,
		vectorDim:  vectorDim,
	}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

func (p *ProcessPipeline) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	return p.r.Invoke(ctx, &req)
}
