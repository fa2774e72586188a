//go:build !cgo

package embedder

import "github.com/deej-ai/deej-ai-go/internal/dberr"

// ONNXEmbedder stub type when built without CGO (see embedder_onnx.go for
// the real implementation).
type ONNXEmbedder struct{}

// New returns ErrModelUnavailable when built without CGO.
func New(_ string) (*ONNXEmbedder, error) {
	return nil, dberr.ErrModelUnavailable
}

func (e *ONNXEmbedder) InputShape() (int, int, error) {
	return 0, 0, dberr.ErrModelUnavailable
}

func (e *ONNXEmbedder) Embed(_ []float32, _, _, _ int) ([]float32, int, error) {
	return nil, 0, dberr.ErrModelUnavailable
}

func (e *ONNXEmbedder) Close() error { return nil }
