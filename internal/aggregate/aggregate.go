// Package aggregate implements the TF-IDF-style reduction of a batch of
// per-track slice matrices into one track vector per key (spec §4.4).
package aggregate

import (
	"fmt"
	"math"

	"github.com/deej-ai/deej-ai-go/internal/dberr"
	"github.com/deej-ai/deej-ai-go/internal/store"
)

// Batch aggregates slices[k] for every key k in the batch into one track
// vector per key, following the original deej-ai scanner's batch loop:
// normalise every row, build the cosine-distance matrix, derive IDF from
// epsilon-neighborhood key counts, derive TF from epsilon-neighborhood
// row counts within a key, and sum idf*tf-weighted normalised rows.
//
// When len(slices) == 1 every IDF value is ln(1/1) == 0 and the resulting
// vector is all-zero — the degenerate outcome §4.4 accepts by definition.
// Callers that want to avoid it (the scan coordinator, per §9's open
// question) should not hand Batch a singleton batch.
func Batch(slices map[string]store.Matrix, epsilon float64) (map[string]store.Matrix, error) {
	keys := make([]string, 0, len(slices))
	for k := range slices {
		keys = append(keys, k)
	}

	// Flatten all rows across all tracks, L2-normalising each, and record
	// the global row-index range owned by each key.
	type rowRange struct{ start, end int } // [start, end)
	ranges := make(map[string]rowRange, len(keys))

	dim := 0
	total := 0
	for _, k := range keys {
		m := slices[k]
		if dim == 0 {
			dim = m.Cols
		}
		total += m.Rows
	}

	rows := make([][]float64, 0, total)
	owner := make([]string, 0, total)
	for _, k := range keys {
		m := slices[k]
		start := len(rows)
		for i := 0; i < m.Rows; i++ {
			raw := m.Row(i)
			norm := store.L2Norm(raw)
			if norm == 0 {
				return nil, fmt.Errorf("%w: zero-norm slice row for %s", dberr.ErrDegenerateEmbedding, k)
			}
			v := make([]float64, len(raw))
			for j, x := range raw {
				v[j] = float64(x) / norm
			}
			rows = append(rows, v)
			owner = append(owner, k)
		}
		ranges[k] = rowRange{start, len(rows)}
	}
	n := len(rows)

	// Pairwise cosine distance matrix, symmetric, zero diagonal.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := 1 - dot(rows[i], rows[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	K := float64(len(keys))
	idf := make([]float64, n)
	for i := 0; i < n; i++ {
		count := 0
		for _, k := range keys {
			r := ranges[k]
			near := false
			for j := r.start; j < r.end; j++ {
				if dist[i][j] < epsilon {
					near = true
					break
				}
			}
			if near {
				count++
			}
		}
		ratio := float64(count) / K
		idf[i] = -math.Log(ratio)
	}

	out := make(map[string]store.Matrix, len(keys))
	for _, k := range keys {
		r := ranges[k]
		vec := make([]float64, dim)
		for i := r.start; i < r.end; i++ {
			tf := 0
			for j := r.start; j < r.end; j++ {
				if dist[i][j] < epsilon {
					tf++
				}
			}
			weight := float64(tf) * idf[i]
			for j, x := range rows[i] {
				vec[j] += x * weight
			}
		}
		data := make([]float32, dim)
		for j, x := range vec {
			data[j] = float32(x)
		}
		out[k] = store.Matrix{Rows: 1, Cols: dim, Data: data}
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
