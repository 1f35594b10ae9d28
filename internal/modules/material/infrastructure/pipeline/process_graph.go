package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/infrastructure/extraction"
	"EduLink/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"
)

// processState 流水线中间状态（节点间传递），Err 非空时后续节点直接透传
type processState struct {
	Req *ProcessRequest

	Data   []byte
	Text   string
	Parts  []string
	Chunks []material.MaterialChunk

	Start time.Time
	Err   error
}

// buildGraph 节点顺序：Download → Extract → Chunk → Embed → Persist → BuildResult
func (p *ProcessPipeline) buildGraph(ctx context.Context) (compose.Runnable[*ProcessRequest, *ProcessResult], error) {
	const (
		Download    = "Download"
		Extract     = "Extract"
		Chunk       = "Chunk"
		Embed       = "Embed"
		Persist     = "Persist"
		BuildResult = "BuildResult"
	)
	g := compose.NewGraph[*ProcessRequest, *ProcessResult]()

	_ = g.AddLambdaNode(Download, compose.InvokableLambdaWithOption(p.downloadNode), compose.WithNodeName(Download))
	_ = g.AddLambdaNode(Extract, compose.InvokableLambdaWithOption(p.extractNode), compose.WithNodeName(Extract))
	_ = g.AddLambdaNode(Chunk, compose.InvokableLambdaWithOption(p.chunkNode), compose.WithNodeName(Chunk))
	_ = g.AddLambdaNode(Embed, compose.InvokableLambdaWithOption(p.embedNode), compose.WithNodeName(Embed))
	_ = g.AddLambdaNode(Persist, compose.InvokableLambdaWithOption(p.persistNode), compose.WithNodeName(Persist))
	_ = g.AddLambdaNode(BuildResult, compose.InvokableLambdaWithOption(p.buildResultNode), compose.WithNodeName(BuildResult))

	_ = g.AddEdge(compose.START, Download)
	_ = g.AddEdge(Download, Extract)
	_ = g.AddEdge(Extract, Chunk)
	_ = g.AddEdge(Chunk, Embed)
	_ = g.AddEdge(Embed, Persist)
	_ = g.AddEdge(Persist, BuildResult)
	_ = g.AddEdge(BuildResult, compose.END)

	return g.Compile(ctx, compose.WithGraphName("MaterialProcessPipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

// downloadNode 节点 1：校验请求并拉取 blob
func (p *ProcessPipeline) downloadNode(ctx context.Context, req *ProcessRequest, _ ...any) (*processState, error) {
	st := &processState{Req: req, Start: time.Now()}
	if req == nil {
		st.Err = &material.ValidationError{Field: "request", Reason: "为空"}
		return st, nil
	}
	req.MaterialId = strings.TrimSpace(req.MaterialId)
	req.BlobURL = strings.TrimSpace(req.BlobURL)
	if req.MaterialId == "" {
		st.Err = &material.ValidationError{Field: "material_id", Reason: "缺失"}
		return st, nil
	}
	if req.BlobURL == "" {
		st.Err = &material.ValidationError{Field: "blob_url", Reason: "缺失"}
		return st, nil
	}

	// 单次尝试的超时由下载客户端自身约束，这里不再包一层整体超时，
	// 否则首次尝试耗尽预算后后续重试没有机会执行
	data, err := p.downloader.Download(ctx, req.BlobURL)
	if err != nil {
		st.Err = err
		return st, nil
	}
	st.Data = data
	return st, nil
}

// extractNode 节点 2：抽取 PDF 纯文本并归一化
func (p *ProcessPipeline) extractNode(ctx context.Context, st *processState, _ ...any) (*processState, error) {
	_ = ctx
	if st == nil {
		return &processState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}

	text, err := extraction.ExtractPDF(st.Data)
	if err != nil {
		st.Err = err
		return st, nil
	}
	st.Text = extraction.Normalize(st.Req.MaterialId, text)
	st.Data = nil
	return st, nil
}

// chunkNode 节点 3：切分文本
func (p *ProcessPipeline) chunkNode(ctx context.Context, st *processState, _ ...any) (*processState, error) {
	if st == nil {
		return &processState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}

	parts, err := p.chunker.Chunk(ctx, st.Text)
	if err != nil {
		st.Err = err
		return st, nil
	}
	if len(parts) == 0 {
		st.Err = &material.ExtractionError{Reason: "切分后无有效片段"}
		return st, nil
	}
	st.Parts = parts
	return st, nil
}

// embedNode 节点 4：批量向量化全部片段，维度不符即失败
func (p *ProcessPipeline) embedNode(ctx context.Context, st *processState, _ ...any) (*processState, error) {
	if st == nil {
		return &processState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}

	vecs, err := p.embedder.EmbedStrings(ctx, st.Parts)
	if err != nil {
		st.Err = err
		return st, nil
	}
	if len(vecs) != len(st.Parts) {
		st.Err = &material.TransientIOError{
			Op:  "embedding",
			Err: fmt.Errorf("向量数量不符 got=%d want=%d", len(vecs), len(st.Parts)),
		}
		return st, nil
	}

	now := time.Now()
	chunks := make([]material.MaterialChunk, 0, len(st.Parts))
	for i, part := range st.Parts {
		if p.vectorDim > 0 && len(vecs[i]) != p.vectorDim {
			st.Err = &material.TransientIOError{
				Op:  "embedding",
				Err: fmt.Errorf("向量维度不符 got=%d want=%d", len(vecs[i]), p.vectorDim),
			}
			return st, nil
		}
		vec32 := make([]float32, len(vecs[i]))
		for j := range vecs[i] {
			vec32[j] = float32(vecs[i][j])
		}
		chunk := material.MaterialChunk{
			MaterialId: st.Req.MaterialId,
			SeqIndex:   i,
			Content:    part,
			CreatedAt:  now,
		}
		if err := chunk.SetEmbedding(vec32); err != nil {
			st.Err = &material.ExtractionError{Reason: "向量序列化失败: " + err.Error()}
			return st, nil
		}
		chunks = append(chunks, chunk)
	}
	st.Chunks = chunks
	return st, nil
}

// persistNode 节点 5：覆盖写入全部块，重试时不会残留旧数据
func (p *ProcessPipeline) persistNode(ctx context.Context, st *processState, _ ...any) (*processState, error) {
	if st == nil {
		return &processState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}

	if err := p.chunkRepo.ReplaceForMaterial(ctx, st.Req.MaterialId, st.Chunks); err != nil {
		st.Err = err
		return st, nil
	}
	return st, nil
}

// buildResultNode 节点 6：组装结果并记录处理日志
func (p *ProcessPipeline) buildResultNode(ctx context.Context, st *processState, _ ...any) (*ProcessResult, error) {
	_ = ctx
	if st == nil {
		return nil, fmt.Errorf("nil state")
	}

	res := &ProcessResult{}
	if st.Req != nil {
		res.MaterialId = st.Req.MaterialId
	}
	res.Chunks = len(st.Chunks)
	res.TextChars = len([]rune(st.Text))
	res.DurationMs = time.Since(st.Start).Milliseconds()

	if st.Err != nil {
		zlog.Warn("资料处理失败",
			zap.String("material_id", res.MaterialId),
			zap.Bool("transient", material.IsTransient(st.Err)),
			zap.Int64("ms", res.DurationMs),
			zap.Error(st.Err),
		)
	} else {
		zlog.Info("资料处理完成",
			zap.String("material_id", res.MaterialId),
			zap.Int("chunks", res.Chunks),
			zap.Int("text_chars", res.TextChars),
			zap.Int64("ms", res.DurationMs),
		)
	}
	return res, st.Err
}
