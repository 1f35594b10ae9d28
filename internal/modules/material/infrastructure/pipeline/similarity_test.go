package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineIdenticalVectors(t *testing.T) {
	a := []float64{0.5, 0.5, 0.5}
	b := []float32{0.5, 0.5, 0.5}
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)
}

func TestCosineOrthogonalVectors(t *testing.T) {
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineOppositeVectors(t *testing.T) {
	assert.InDelta(t, -1.0, Cosine([]float64{1, 2}, []float32{-1, -2}), 1e-6)
}

func TestCosineZeroMagnitude(t *testing.T) {
	assert.Zero(t, Cosine([]float64{0, 0}, []float32{1, 1}))
	assert.Zero(t, Cosine([]float64{1, 1}, []float32{0, 0}))
}

func TestCosineDimMismatch(t *testing.T) {
	assert.Zero(t, Cosine([]float64{1, 2, 3}, []float32{1, 2}))
	assert.Zero(t, Cosine(nil, nil))
}
