package chunking

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// ParagraphChunker 优先按段落边界切分，切不动时退化为按句子、再按字符；
// 片段之间带重叠以降低语义截断的影响
type ParagraphChunker struct {
	ChunkSize    int
	ChunkOverlap int

	initOnce sync.Once
	initErr  error
	splitter document.Transformer
}

// NewParagraphChunker 创建切片器；size/overlap 非法时回落到默认值
func NewParagraphChunker(size, overlap int) *ParagraphChunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &ParagraphChunker{ChunkSize: size, ChunkOverlap: overlap}
}

// Chunk 切分归一化后的文本，产出非空片段，顺序与原文一致
func (c *ParagraphChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}
	if len([]rune(text)) <= c.ChunkSize {
		return []string{text}, nil
	}

	c.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.ChunkOverlap,
			Separators:  []string{"\n\n", "\n", "。", "！", "？", "；", ". ", " "},
			LenFunc: func(s string) int {
				return len([]rune(s))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.splitter = impl
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	if c.splitter == nil {
		return nil, fmt.Errorf("切片器未初始化")
	}

	frags, err := c.splitter.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(frags))
	for _, f := range frags {
		if f == nil {
			continue
		}
		part := strings.TrimSpace(f.Content)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out, nil
}
