package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/cloudwego/eino/components/embedding"
)

// MockEmbedder 本地开发/测试用：对文本内容做哈希播种生成确定性单位向量，
// 相同文本得到相同向量，不同文本向量彼此区分，余弦相似度计算有意义
type MockEmbedder struct {
	Dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = defaultDim
	}
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	result := make([][]float64, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		rng := rand.New(rand.NewSource(int64(h.Sum64())))

		vec := make([]float64, m.Dim)
		var norm float64
		for j := range vec {
			vec[j] = rng.NormFloat64()
			norm += vec[j] * vec[j]
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for j := range vec {
				vec[j] /= norm
			}
		}
		result[i] = vec
	}
	return result, nil
}

var _ embedding.Embedder = (*MockEmbedder)(nil)
