// Package reorder implements tour-cost optimisation over an existing
// playlist via simulated annealing (spec §4.7).
package reorder

import (
	"math"
	"math/rand"
)

// VectorLookup resolves a track key to its bundled embedding.
type VectorLookup interface {
	Vector(key string) ([]float32, bool)
}

const (
	startTemperature   = 10.0
	coolingRate        = 0.9995
	absoluteTemperature = 1e-4
)

// Reorder runs simulated annealing over tracks to minimise the cyclic
// cosine-distance tour cost, then anchors firstSong at the front and
// reverses the remainder when that reduces the cost of the edge leaving
// it (spec §4.7). tracks absent from lookup are dropped before annealing.
//
// posRNG drives proposal selection (which two positions to swap) and
// acceptRNG drives the Metropolis acceptance draw; keeping them separate
// lets tests pin the acceptance draw while varying the proposal sequence
// and vice versa (spec §9).
func Reorder(lookup VectorLookup, tracks []string, firstSong string, posRNG, acceptRNG *rand.Rand) ([]string, error) {
	result := append([]string(nil), tracks...)
	if firstSong != "" && !contains(result, firstSong) {
		result = append(result, firstSong)
	}

	result = dropUnknown(lookup, result)
	if len(result) == 0 {
		return nil, nil
	}

	vecs := make(map[string][]float32, len(result))
	for _, t := range result {
		v, _ := lookup.Vector(t)
		vecs[t] = v
	}

	result = anneal(vecs, result, posRNG, acceptRNG)

	if firstSong != "" {
		if idx := indexOf(result, firstSong); idx >= 0 {
			result = rotate(result, idx)
		}
	}

	if len(result) >= 3 {
		current := vecs[result[0]]
		prev := vecs[result[len(result)-1]]
		next := vecs[result[1]]
		if cosDistance(prev, current) < cosDistance(current, next) {
			reverseFrom(result, 1)
		}
	}

	return result, nil
}

func anneal(vecs map[string][]float32, tour []string, posRNG, acceptRNG *rand.Rand) []string {
	current := append([]string(nil), tour...)
	currentDist := totalDistance(vecs, current)
	best := append([]string(nil), current...)
	bestDist := currentDist

	n := len(current)
	if n < 2 {
		return best
	}

	for t := startTemperature; t > absoluteTemperature; t *= coolingRate {
		candidate := append([]string(nil), current...)
		i := posRNG.Intn(n)
		j := posRNG.Intn(n)
		candidate[i], candidate[j] = candidate[j], candidate[i]

		newDist := totalDistance(vecs, candidate)
		delta := newDist - currentDist

		if delta < 0 || acceptRNG.Float64() < math.Exp(-delta/t) {
			current = candidate
			currentDist = newDist
			if currentDist < bestDist {
				best = append([]string(nil), current...)
				bestDist = currentDist
			}
		}
	}
	return best
}

func totalDistance(vecs map[string][]float32, tour []string) float64 {
	var dist float64
	n := len(tour)
	for i := 0; i < n; i++ {
		dist += cosDistance(vecs[tour[i]], vecs[tour[(i+1)%n]])
	}
	return dist
}

func cosDistance(a, b []float32) float64 {
	var aNorm, bNorm, dot float64
	for i := range a {
		aNorm += float64(a[i]) * float64(a[i])
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range b {
		bNorm += float64(x) * float64(x)
	}
	denom := math.Sqrt(aNorm) * math.Sqrt(bNorm)
	if denom < 0.001 {
		return 1.0
	}
	return 1.0 - dot/denom
}

func dropUnknown(lookup VectorLookup, tracks []string) []string {
	out := tracks[:0:0]
	for _, t := range tracks {
		if _, ok := lookup.Vector(t); ok {
			out = append(out, t)
		}
	}
	return out
}

func contains(s []string, v string) bool { return indexOf(s, v) >= 0 }

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// rotate brings s[idx] to the front, preserving cyclic order.
func rotate(s []string, idx int) []string {
	out := make([]string, 0, len(s))
	out = append(out, s[idx:]...)
	out = append(out, s[:idx]...)
	return out
}

// reverseFrom reverses s[from:] in place.
func reverseFrom(s []string, from int) {
	i, j := from, len(s)-1
	for i < j {
		s[i], s[j] = s[j], s[i]
		i++
		j--
	}
}
