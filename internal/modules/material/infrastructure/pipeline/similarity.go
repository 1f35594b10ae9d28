package pipeline

import "math"

// Cosine 余弦相似度 a·b/(|a||b|)；维度不一致或任一向量模为 0 时返回 0
func Cosine(a []float64, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		bi := float64(b[i])
		dot += a[i] * bi
		normA += a[i] * a[i]
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
