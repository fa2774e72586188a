package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureVecs() map[string][]float32 {
	return map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.9, 0.1, 0},
		"c": {0, 1, 0},
		"d": {0, 0.9, 0.1},
		"e": {0, 0, 1},
	}
}

func TestMostSimilarExcludesAndSorts(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	got := g.MostSimilar(map[string]bool{"a": true}, []float32{1, 0, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Key)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestGenerateAppendGrowsToNSongs(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	g.SeedWith(1)
	out := g.Generate("append", []string{"a"}, 3, 3, 0)
	assert.Len(t, out, 3)
	assert.Equal(t, "a", out[0])
}

func TestGenerateClusterKeepsSeedsAndGrows(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	g.SeedWith(2)
	out := g.Generate("cluster", []string{"a", "b"}, 4, 3, 0)
	assert.Len(t, out, 4)
	assert.Equal(t, []string{"a", "b"}, out[:2])
}

func TestGenerateConnectBridgesEndpoints(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	g.SeedWith(3)
	out := g.Generate("connect", []string{"a", "e"}, 2, 0, 0)
	require.GreaterOrEqual(t, len(out), 2)
	assert.Equal(t, "a", out[0])
	assert.Equal(t, "e", out[len(out)-1])
}

func TestGenerateConnectWithSingleSeedFallsBackToAppend(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	g.SeedWith(4)
	out := g.Generate("connect", []string{"a"}, 3, 3, 0)
	assert.Len(t, out, 3)
}

func TestMissingSeedsDropsUnknownKeys(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	kept, dropped := g.MissingSeeds([]string{"a", "nope"})
	assert.Equal(t, []string{"a"}, kept)
	assert.Equal(t, []string{"nope"}, dropped)
}

func TestGenerateWithNoKnownSeedsReturnsEmpty(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	out := g.Generate("append", []string{"nope"}, 3, 3, 0)
	assert.Nil(t, out)
}

func TestAddNoiseChangesVectorWhenNoisePositive(t *testing.T) {
	g := NewFromVectors(fixtureVecs())
	g.SeedWith(5)
	v := []float32{1, 0, 0}
	orig := append([]float32(nil), v...)
	g.addNoise(v, 1.0)
	assert.NotEqual(t, orig, v)
}
