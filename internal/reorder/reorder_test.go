package reorder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup map[string][]float32

func (f fakeLookup) Vector(key string) ([]float32, bool) {
	v, ok := f[key]
	return v, ok
}

func TestReorderReturnsSamePermutation(t *testing.T) {
	lookup := fakeLookup{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
		"d": {0.7, 0.7, 0},
	}
	posRNG := rand.New(rand.NewSource(1))
	acceptRNG := rand.New(rand.NewSource(2))

	out, err := Reorder(lookup, []string{"a", "b", "c", "d"}, "", posRNG, acceptRNG)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, out)
}

func TestReorderAnchorsFirstSong(t *testing.T) {
	lookup := fakeLookup{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}
	posRNG := rand.New(rand.NewSource(3))
	acceptRNG := rand.New(rand.NewSource(4))

	out, err := Reorder(lookup, []string{"a", "b", "c"}, "c", posRNG, acceptRNG)
	require.NoError(t, err)
	assert.Equal(t, "c", out[0])
}

func TestReorderDropsUnknownTracks(t *testing.T) {
	lookup := fakeLookup{"a": {1, 0}, "b": {0, 1}}
	posRNG := rand.New(rand.NewSource(5))
	acceptRNG := rand.New(rand.NewSource(6))

	out, err := Reorder(lookup, []string{"a", "nope", "b"}, "", posRNG, acceptRNG)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, out)
}

func TestReorderAllUnknownReturnsEmpty(t *testing.T) {
	lookup := fakeLookup{"a": {1, 0}}
	posRNG := rand.New(rand.NewSource(7))
	acceptRNG := rand.New(rand.NewSource(8))

	out, err := Reorder(lookup, []string{"nope"}, "", posRNG, acceptRNG)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCosDistanceIdenticalIsZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosDistance([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-6)
}

func TestCosDistanceZeroNormIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, cosDistance([]float32{0, 0}, []float32{1, 1}), 1e-6)
}

func TestRotateBringsIndexToFront(t *testing.T) {
	got := rotate([]string{"a", "b", "c", "d"}, 2)
	assert.Equal(t, []string{"c", "d", "a", "b"}, got)
}
