package scan

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deej-ai/deej-ai-go/internal/config"
	"github.com/deej-ai/deej-ai-go/internal/store"
)

func TestHasAudioExtension(t *testing.T) {
	assert.True(t, hasAudioExtension("/a/B.MP3"))
	assert.True(t, hasAudioExtension("song.flac"))
	assert.True(t, hasAudioExtension("song.m4a"))
	assert.False(t, hasAudioExtension("song.wav"))
	assert.False(t, hasAudioExtension("song.txt"))
}

func TestDiscoverAudioFilesWalksRecursively(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.flac"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("x"), 0o644))

	got, err := discoverAudioFiles([]string{dir}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPartitionBatchesMergesTrailingSingleton(t *testing.T) {
	keys := []string{"a", "b", "c"}
	batches := partitionBatches(keys, 2, rand.New(rand.NewSource(1)))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestPartitionBatchesSingletonTotalReturnsNil(t *testing.T) {
	batches := partitionBatches([]string{"a"}, 2, rand.New(rand.NewSource(1)))
	assert.Nil(t, batches)
}

func TestPartitionBatchesEvenSplitKeepsBothBatches(t *testing.T) {
	keys := []string{"a", "b", "c", "d"}
	batches := partitionBatches(keys, 2, rand.New(rand.NewSource(1)))
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
}

func TestPruneDeletedRemovesMissingFilesAndArtefacts(t *testing.T) {
	dir := t.TempDir()
	c := &Coordinator{Logger: zaptest.NewLogger(t), VecDir: dir, Scan: config.DefaultScan()}

	missing := filepath.Join(dir, "gone.mp3")
	artefact := filepath.Join(dir, store.ScannedFilename(missing))
	require.NoError(t, os.WriteFile(artefact, []byte("x"), 0o644))

	bundled := map[string]store.Matrix{missing: {Rows: 1, Cols: 1, Data: []float32{1}}}
	c.pruneDeleted(bundled)

	assert.Empty(t, bundled)
	_, err := os.Stat(artefact)
	assert.True(t, os.IsNotExist(err))
}

func TestConsolidateAggregatesRemainingIntoBundle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(store.BundledDir(dir), 0o755))

	trackA := filepath.Join(dir, "a.mp3")
	trackB := filepath.Join(dir, "b.mp3")
	require.NoError(t, os.WriteFile(trackA, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(trackB, []byte("x"), 0o644))

	require.NoError(t, store.SaveMap(filepath.Join(dir, store.ScannedFilename(trackA)),
		store.MatrixMap{trackA: {Rows: 2, Cols: 2, Data: []float32{1, 0, 1, 0}}}))
	require.NoError(t, store.SaveMap(filepath.Join(dir, store.ScannedFilename(trackB)),
		store.MatrixMap{trackB: {Rows: 2, Cols: 2, Data: []float32{0, 1, 0, 1}}}))

	c := &Coordinator{
		Logger: zaptest.NewLogger(t),
		VecDir: dir,
		Scan:   config.Scan{BatchSize: 10, Epsilon: 0.1, Jobs: config.AutoJobs},
	}

	require.NoError(t, c.consolidate(rand.New(rand.NewSource(1))))

	got, err := store.LoadMap(store.BundledVecsPath(dir))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, got[trackA].Rows)
}
