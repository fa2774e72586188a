// Package scan implements the scan coordinator (spec §4.5): discover audio
// files, embed the ones not already scanned, fold the per-file artefacts
// into batches, and consolidate batches into the bundled vector map.
package scan

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/deej-ai/deej-ai-go/internal/aggregate"
	"github.com/deej-ai/deej-ai-go/internal/config"
	"github.com/deej-ai/deej-ai-go/internal/dberr"
	"github.com/deej-ai/deej-ai-go/internal/embedder"
	"github.com/deej-ai/deej-ai-go/internal/features"
	"github.com/deej-ai/deej-ai-go/internal/store"
)

// Coordinator owns one scan run's model driver and on-disk layout.
type Coordinator struct {
	Logger   *zap.Logger
	Embedder embedder.Embedder
	VecDir   string
	Scan     config.Scan
}

// Run executes one full scan over roots.
func (c *Coordinator) Run(ctx context.Context, roots []string) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	files, err := discoverAudioFiles(roots, rng)
	if err != nil {
		return fmt.Errorf("%w: %v", dberr.ErrScanFailed, err)
	}

	if err := os.MkdirAll(c.VecDir, 0o755); err != nil {
		return fmt.Errorf("%w: create vec dir: %v", dberr.ErrIOError, err)
	}
	bundledDir := store.BundledDir(c.VecDir)
	if err := os.MkdirAll(bundledDir, 0o755); err != nil {
		return fmt.Errorf("%w: create bundled dir: %v", dberr.ErrIOError, err)
	}

	nMels, sliceSize, err := c.Embedder.InputShape()
	if err != nil {
		return fmt.Errorf("%w: %v", dberr.ErrModelUnavailable, err)
	}
	featureSpec := features.Spec{
		SampleRate: config.SampleRate,
		NFFT:       config.NFFT,
		HopLength:  config.HopLength,
		NMels:      nMels,
		SliceSize:  sliceSize,
		FFmpegPath: c.Scan.FFmpeg,
	}

	if err := c.embedAll(ctx, files, featureSpec); err != nil {
		return err
	}

	return c.consolidate(rng)
}

// embedAll runs the bounded worker pool over files not already scanned.
func (c *Coordinator) embedAll(ctx context.Context, files []string, spec features.Spec) error {
	maxConcurrent := int64(runtime.NumCPU())
	if c.Scan.Jobs != config.AutoJobs && c.Scan.Jobs > 0 {
		if int64(c.Scan.Jobs) < maxConcurrent {
			maxConcurrent = int64(c.Scan.Jobs)
		}
	}
	sem := semaphore.NewWeighted(maxConcurrent)

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(decor.Name("Scanning: "), decor.CountersNoUnit("%d / %d")),
		mpb.AppendDecorators(decor.Percentage()),
	)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, path := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer sem.Release(1)
			defer bar.Increment()

			// A file already dispatched runs to completion even if ctx is
			// cancelled; cancellation only stops further dispatch.
			if err := c.embedOne(context.WithoutCancel(ctx), path, spec); err != nil {
				c.Logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			}
		}(path)
	}

	wg.Wait()
	p.Wait()

	if firstErr != nil {
		return fmt.Errorf("%w: %v", dberr.ErrScanFailed, firstErr)
	}
	return nil
}

// embedOne embeds a single file, skipping it if its artefact already
// exists on disk (spec §4.5's "per-file embed-or-skip").
func (c *Coordinator) embedOne(ctx context.Context, path string, spec features.Spec) error {
	vecPath := filepath.Join(c.VecDir, store.ScannedFilename(path))
	if info, err := os.Stat(vecPath); err == nil && !info.IsDir() {
		return nil
	}

	tensor, err := features.FromFile(ctx, spec, path)
	if err != nil {
		return err
	}

	out, dim, err := c.Embedder.Embed(tensor.Data, tensor.Batch, tensor.NMels, tensor.SliceSize)
	if err != nil {
		return fmt.Errorf("%w: %v", dberr.ErrEmbeddingFailure, err)
	}

	m := store.MatrixMap{path: store.Matrix{Rows: tensor.Batch, Cols: dim, Data: out}}
	return store.SaveMap(vecPath, m)
}

// consolidate folds newly-embedded per-file artefacts into the bundled
// vector map: load, prune deleted entries, diff against the bundle,
// aggregate remaining keys into batches, save the batch files, merge them
// into the bundle and persist it (spec §4.5).
func (c *Coordinator) consolidate(rng *rand.Rand) error {
	individual, err := c.loadIndividualVecs()
	if err != nil {
		return err
	}

	bundledPath := store.BundledVecsPath(c.VecDir)
	bundled, err := store.LoadMap(bundledPath)
	if err != nil {
		return err
	}

	startBatch, err := c.mergeExistingBatches(bundled)
	if err != nil {
		return err
	}

	c.pruneDeleted(bundled)

	var remaining []string
	for key := range individual {
		if _, ok := bundled[key]; ok {
			continue
		}
		if _, err := os.Stat(key); err != nil {
			// Source file is gone: drop its artefact instead of aggregating it.
			_ = os.Remove(filepath.Join(c.VecDir, store.ScannedFilename(key)))
			continue
		}
		remaining = append(remaining, key)
	}

	batches := partitionBatches(remaining, c.Scan.BatchSize, rng)

	for i, keys := range batches {
		slices := make(map[string]store.Matrix, len(keys))
		for _, k := range keys {
			slices[k] = individual[k]
		}
		batchVec, err := aggregate.Batch(slices, c.Scan.Epsilon)
		if err != nil {
			return fmt.Errorf("%w: %v", dberr.ErrScanFailed, err)
		}
		for k, v := range batchVec {
			bundled[k] = v
		}
		if err := store.SaveMap(store.BatchPath(c.VecDir, startBatch+i), batchVec); err != nil {
			return err
		}
	}

	if err := store.SaveMap(bundledPath, bundled); err != nil {
		return err
	}
	return c.removeBatchFiles()
}

// partitionBatches splits keys into random batches of size batchSize,
// merging a trailing remainder-of-one into the previous batch (or
// dropping it to be picked up on the next scan if it is the only pending
// key), avoiding the degenerate all-zero aggregate a singleton batch
// would produce (spec §9 open question, decided in the grounding ledger).
func partitionBatches(keys []string, batchSize int, rng *rand.Rand) [][]string {
	if len(keys) == 0 {
		return nil
	}
	perm := rng.Perm(len(keys))
	shuffled := make([]string, len(keys))
	for i, p := range perm {
		shuffled[i] = keys[p]
	}

	var batches [][]string
	for i := 0; i < len(shuffled); i += batchSize {
		end := i + batchSize
		if end > len(shuffled) {
			end = len(shuffled)
		}
		batches = append(batches, shuffled[i:end])
	}

	if len(batches) == 0 {
		return nil
	}
	last := batches[len(batches)-1]
	if len(last) == 1 {
		if len(batches) == 1 {
			return nil
		}
		batches = batches[:len(batches)-1]
		batches[len(batches)-1] = append(batches[len(batches)-1], last[0])
	}
	return batches
}

func (c *Coordinator) loadIndividualVecs() (map[string]store.Matrix, error) {
	entries, err := os.ReadDir(c.VecDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dberr.ErrIOError, err)
	}

	out := make(map[string]store.Matrix)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		m, err := store.LoadMap(filepath.Join(c.VecDir, e.Name()))
		if err != nil {
			c.Logger.Warn("dropping corrupted artefact", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

// mergeExistingBatches merges any batch_<n>.bin files left over from a
// prior, interrupted consolidation into bundled, and returns the next
// batch index to use.
func (c *Coordinator) mergeExistingBatches(bundled map[string]store.Matrix) (int, error) {
	dir := store.BundledDir(c.VecDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1, fmt.Errorf("%w: %v", dberr.ErrIOError, err)
	}

	next := 1
	for _, e := range entries {
		if e.IsDir() || !isBatchFile(e.Name()) {
			continue
		}
		next++
		m, err := store.LoadMap(filepath.Join(dir, e.Name()))
		if err != nil {
			return next, err
		}
		for k, v := range m {
			bundled[k] = v
		}
	}
	return next, nil
}

func isBatchFile(name string) bool {
	return strings.HasPrefix(name, "batch_") && strings.HasSuffix(name, ".bin")
}

// pruneDeleted drops bundled entries whose source file no longer exists,
// and removes the now-orphaned per-file artefact alongside it.
func (c *Coordinator) pruneDeleted(bundled map[string]store.Matrix) {
	for key := range bundled {
		if _, err := os.Stat(key); err == nil {
			continue
		}
		delete(bundled, key)
		artefact := filepath.Join(c.VecDir, store.ScannedFilename(key))
		_ = os.Remove(artefact)
	}
}

func (c *Coordinator) removeBatchFiles() error {
	dir := store.BundledDir(c.VecDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", dberr.ErrIOError, err)
	}
	for _, e := range entries {
		if !e.IsDir() && isBatchFile(e.Name()) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

