package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder is a test double satisfying Embedder, used to exercise
// callers without an onnxruntime shared library present.
type fakeEmbedder struct {
	nMels, sliceSize, dim int
}

func (f *fakeEmbedder) InputShape() (int, int, error) { return f.nMels, f.sliceSize, nil }

func (f *fakeEmbedder) Embed(input []float32, batch, nMels, sliceSize int) ([]float32, int, error) {
	out := make([]float32, batch*f.dim)
	for b := 0; b < batch; b++ {
		for d := 0; d < f.dim; d++ {
			out[b*f.dim+d] = float32(b + d)
		}
	}
	return out, f.dim, nil
}

func (f *fakeEmbedder) Close() error { return nil }

func TestFakeEmbedderSatisfiesInterface(t *testing.T) {
	var e Embedder = &fakeEmbedder{nMels: 96, sliceSize: 216, dim: 150}
	nMels, sliceSize, err := e.InputShape()
	require.NoError(t, err)
	assert.Equal(t, 96, nMels)
	assert.Equal(t, 216, sliceSize)

	out, dim, err := e.Embed(make([]float32, 2*96*216), 2, 96, 216)
	require.NoError(t, err)
	assert.Equal(t, 150, dim)
	assert.Len(t, out, 2*150)
}
