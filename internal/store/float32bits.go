package store

import "math"

func float32frombits(bits uint32) float32 {
	return math.Float32frombits(bits)
}
