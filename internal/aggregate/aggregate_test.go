package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deej-ai/deej-ai-go/internal/store"
)

func TestBatchProducesOneVectorPerKey(t *testing.T) {
	slices := map[string]store.Matrix{
		"/m/a.mp3": {Rows: 2, Cols: 2, Data: []float32{1, 0, 1, 0}},
		"/m/b.mp3": {Rows: 2, Cols: 2, Data: []float32{0, 1, 0, 1}},
	}
	out, err := Batch(slices, 0.1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for k, m := range out {
		assert.Equal(t, 1, m.Rows, "key %s", k)
		assert.Equal(t, 2, m.Cols, "key %s", k)
	}
	// The two tracks are orthogonal; neither direction's rows fall within
	// epsilon of the other key's rows, so each IDF == -ln(1/2) > 0 and the
	// aggregate vectors are non-zero and point toward each track's own axis.
	a := out["/m/a.mp3"].Data
	b := out["/m/b.mp3"].Data
	assert.Greater(t, a[0], float32(0))
	assert.Equal(t, float32(0), a[1])
	assert.Equal(t, float32(0), b[0])
	assert.Greater(t, b[1], float32(0))
}

func TestBatchSingletonIsDegenerateZero(t *testing.T) {
	slices := map[string]store.Matrix{
		"/m/a.mp3": {Rows: 1, Cols: 2, Data: []float32{1, 0}},
	}
	out, err := Batch(slices, 0.1)
	require.NoError(t, err)
	got := out["/m/a.mp3"].Data
	assert.Equal(t, []float32{0, 0}, got)
}

func TestBatchZeroNormRowFails(t *testing.T) {
	slices := map[string]store.Matrix{
		"/m/a.mp3": {Rows: 1, Cols: 2, Data: []float32{0, 0}},
		"/m/b.mp3": {Rows: 1, Cols: 2, Data: []float32{1, 0}},
	}
	_, err := Batch(slices, 0.1)
	require.Error(t, err)
}

func TestBatchSymmetricUnderKeyReordering(t *testing.T) {
	slicesA := map[string]store.Matrix{
		"/m/a.mp3": {Rows: 2, Cols: 2, Data: []float32{1, 0, 0.9, 0.1}},
		"/m/b.mp3": {Rows: 2, Cols: 2, Data: []float32{0, 1, 0.1, 0.9}},
		"/m/c.mp3": {Rows: 1, Cols: 2, Data: []float32{0.7, 0.7}},
	}
	outA, err := Batch(slicesA, 0.3)
	require.NoError(t, err)

	// Same map, Go's map iteration order is already randomised per-run,
	// but assert the invariant explicitly regardless of insertion order.
	outB, err := Batch(slicesA, 0.3)
	require.NoError(t, err)

	for k := range outA {
		for i := range outA[k].Data {
			assert.InDelta(t, float64(outA[k].Data[i]), float64(outB[k].Data[i]), 1e-6)
		}
	}
}

func TestDotAndLog(t *testing.T) {
	assert.InDelta(t, 1.0, dot([]float64{1, 0}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, math.Log(1), 1e-9)
}
