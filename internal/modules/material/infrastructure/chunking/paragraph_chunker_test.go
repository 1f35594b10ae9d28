package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyText(t *testing.T) {
	c := NewParagraphChunker(100, 20)
	out, err := c.Chunk(context.Background(), "   \n  ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestChunkShortTextSinglePiece(t *testing.T) {
	c := NewParagraphChunker(100, 20)
	out, err := c.Chunk(context.Background(), "短文本不需要切分。")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "短文本不需要切分。", out[0])
}

func TestChunkLongTextProducesMultiplePieces(t *testing.T) {
	c := NewParagraphChunker(50, 10)
	text := strings.Repeat("这是第一段的内容。\n\n", 20)
	out, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	assert.Greater(t, len(out), 1)
	for _, part := range out {
		assert.NotEmpty(t, strings.TrimSpace(part))
	}
}

func TestChunk1500CharsIntoTwoPieces(t *testing.T) {
	// 约 1500 字符、切片上限 1000：段落边界在 960 左右，应得到恰好两片，
	// 第二片约 500 字符
	sentence := "All students must review the lecture notes before the next class session. "
	para1 := strings.TrimSpace(strings.Repeat(sentence, 13))
	para2 := strings.TrimSpace(strings.Repeat(sentence, 7))
	text := para1 + "\n\n" + para2

	c := NewParagraphChunker(1000, 0)
	out, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.LessOrEqual(t, len([]rune(out[0])), 1000)
	assert.InDelta(t, 500, len([]rune(out[1])), 100)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out[0]), "All students"), "片段保持原文顺序")

	// 拼接后在空白归一化意义下还原原文内容
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(out, " ")))
}

func TestNewParagraphChunkerClampsOverlap(t *testing.T) {
	c := NewParagraphChunker(100, 200)
	assert.Equal(t, 25, c.ChunkOverlap)

	c = NewParagraphChunker(0, -1)
	assert.Equal(t, 800, c.ChunkSize)
	assert.Equal(t, 0, c.ChunkOverlap)
}
