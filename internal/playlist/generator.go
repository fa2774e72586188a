// Package playlist implements the three similarity-driven generation
// strategies (append, connect, cluster) and the Top-K cosine search they
// share (spec §4.6).
package playlist

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sort"

	"github.com/deej-ai/deej-ai-go/internal/dberr"
	"github.com/deej-ai/deej-ai-go/internal/store"
)

// Candidate is one scored match returned by MostSimilar.
type Candidate struct {
	Key   string
	Score float64
}

// Generator holds an immutable snapshot of the bundled vector map, loaded
// once at startup (spec §3 ownership: "the generator... observe[s] an
// immutable snapshot loaded at startup").
type Generator struct {
	vecs map[string][]float32
	dim  int
	rng  *rand.Rand
}

// New loads the bundled vector map from vecDir and returns a Generator. It
// fails if the bundle is empty.
func New(vecDir string) (*Generator, error) {
	m, err := store.LoadMapFast(store.BundledVecsPath(vecDir))
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: bundled vector map at %s is empty", dberr.ErrIOError, vecDir)
	}
	vecs := make(map[string][]float32, len(m))
	dim := 0
	for k, mat := range m {
		vecs[k] = store.VectorOf(mat)
		dim = mat.Cols
	}
	return &Generator{vecs: vecs, dim: dim, rng: rand.New(rand.NewSource(randSeed()))}, nil
}

// NewFromVectors builds a Generator directly from an in-memory map,
// primarily for tests.
func NewFromVectors(vecs map[string][]float32) *Generator {
	dim := 0
	for _, v := range vecs {
		dim = len(v)
		break
	}
	return &Generator{vecs: vecs, dim: dim, rng: rand.New(rand.NewSource(randSeed()))}
}

// MissingSeeds filters seeds down to those present in the bundled map,
// returning the survivors and the dropped ones (for a per-drop notice).
func (g *Generator) MissingSeeds(seeds []string) (kept, dropped []string) {
	for _, s := range seeds {
		abs := s
		if a, err := filepath.Abs(s); err == nil {
			abs = a
		}
		if _, ok := g.vecs[abs]; ok {
			kept = append(kept, abs)
			continue
		}
		if _, ok := g.vecs[s]; ok {
			kept = append(kept, s)
			continue
		}
		dropped = append(dropped, s)
	}
	return kept, dropped
}

// Generate runs one of append/connect/cluster (spec §4.6) and returns the
// resulting playlist. Seeds absent from the bundled map are filtered out
// first; if none remain the result is empty.
func (g *Generator) Generate(method string, seeds []string, nsongs, lookback int, noise float64) []string {
	kept, _ := g.MissingSeeds(seeds)
	if len(kept) == 0 {
		return nil
	}

	switch method {
	case "connect":
		if len(kept) < 2 {
			return g.Generate("append", kept, nsongs, lookback, noise)
		}
		return g.generateConnect(kept, nsongs, noise)
	case "cluster":
		return g.generateClusterOrAppend(kept, nsongs, lookback, noise, true)
	default: // "append"
		return g.generateClusterOrAppend(kept, nsongs, lookback, noise, false)
	}
}

// generateClusterOrAppend implements both append and cluster: they share a
// grow-by-one-best-match loop and differ only in how the context vector is
// recomputed each iteration (spec §9: "model them as variants of a single
// operation parameterised by context-vector construction").
func (g *Generator) generateClusterOrAppend(seeds []string, nsongs, lookback int, noise float64, cluster bool) []string {
	playlist := append([]string(nil), seeds...)
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[s] = true
	}

	var clusterVec []float32
	if cluster {
		clusterVec = g.contextVector(seeds, noise)
	}

	for len(playlist) < nsongs {
		var ctx []float32
		if cluster {
			ctx = clusterVec
		} else {
			start := len(playlist) - lookback
			if start < 0 {
				start = 0
			}
			ctx = g.contextVector(playlist[start:], noise)
		}

		matches := g.MostSimilar(seen, ctx, 1)
		if len(matches) == 0 {
			break
		}
		next := matches[0].Key
		playlist = append(playlist, next)
		seen[next] = true
	}
	return playlist
}

// generateConnect implements the connect method (spec §4.6).
func (g *Generator) generateConnect(seeds []string, nsongs int, noise float64) []string {
	const maxTries = 100

	playlist := []string{seeds[0]}
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[s] = true
	}

	for t := 1; t < len(seeds); t++ {
		start, end := seeds[t-1], seeds[t]
		startVec, endVec := g.vecs[start], g.vecs[end]

		for i := 0; i < nsongs; i++ {
			alpha := float64(nsongs-i+1) / float64(nsongs+1)
			beta := 1 - alpha

			blended := make([]float32, g.dim)
			for j := range blended {
				blended[j] = float32(alpha)*startVec[j] + float32(beta)*endVec[j]
			}
			g.addNoise(blended, noise)

			matches := g.MostSimilar(seen, blended, maxTries)
			nextSong := ""
			for _, c := range matches {
				if c.Key != end {
					nextSong = c.Key
					break
				}
			}
			if nextSong == "" {
				break
			}
			playlist = append(playlist, nextSong)
			seen[nextSong] = true
		}
		playlist = append(playlist, end)
	}
	return playlist
}

// contextVector sums the vectors of tracks and adds noise scaled by the
// sum's own norm (spec §4.6 "calculate_vector").
func (g *Generator) contextVector(tracks []string, noise float64) []float32 {
	sum := make([]float32, g.dim)
	for _, name := range tracks {
		v, ok := g.vecs[name]
		if !ok {
			continue
		}
		for j, x := range v {
			sum[j] += x
		}
	}
	g.addNoise(sum, noise)
	return sum
}

// addNoise adds i.i.d. Gaussian noise with stddev noise*||vec|| to each
// coordinate in place, drawing fresh from g's RNG (spec §4.6, §9: "tests
// should seed both [RNGs]" — the reorderer's two RNGs are distinct from
// this generator's single noise RNG, which only needs seeding in tests).
func (g *Generator) addNoise(vec []float32, noise float64) {
	if noise <= 0 {
		return
	}
	stddev := noise * store.L2Norm(vec)
	for i := range vec {
		vec[i] += float32(g.rng.NormFloat64() * stddev)
	}
}

// MostSimilar returns up to topn candidates, excluding keys in excluded,
// sorted strictly descending by cosine similarity to query (spec §4.6).
func (g *Generator) MostSimilar(excluded map[string]bool, query []float32, topn int) []Candidate {
	queryNorm := store.L2Norm(query)
	out := make([]Candidate, 0, len(g.vecs))
	for k, v := range g.vecs {
		if excluded[k] {
			continue
		}
		out = append(out, Candidate{Key: k, Score: cosineSimilarity(query, v, queryNorm)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topn {
		out = out[:topn]
	}
	return out
}

func cosineSimilarity(a, b []float32, aNorm float64) float64 {
	bNorm := store.L2Norm(b)
	denom := aNorm * bNorm
	if denom == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / denom
}

// Dim returns the bundled map's embedding dimensionality.
func (g *Generator) Dim() int { return g.dim }

// Has reports whether key is present in the bundled map.
func (g *Generator) Has(key string) bool {
	_, ok := g.vecs[key]
	return ok
}

// Vector returns the vector for key, primarily for the reorderer.
func (g *Generator) Vector(key string) ([]float32, bool) {
	v, ok := g.vecs[key]
	return v, ok
}

// Vectors exposes the full immutable snapshot, used by the reorderer.
func (g *Generator) Vectors() map[string][]float32 { return g.vecs }

func randSeed() int64 {
	return int64(math.Float64bits(float64(len("deej-ai")))) // overridden by SeedWith in tests
}

// SeedWith reseeds the generator's noise RNG deterministically (tests).
func (g *Generator) SeedWith(seed int64) {
	g.rng = rand.New(rand.NewSource(seed))
}
