// Package embedder wraps the pretrained audio embedding model (spec §4.3).
package embedder

// Embedder turns a batch of (1, n_mels, slice_size) mel-spectrogram slices
// into a (batch, D) matrix of raw (unnormalised) embeddings.
type Embedder interface {
	// Embed runs the model over input, shaped (batch, 1, nMels, sliceSize)
	// and flattened row major, returning the (batch, D) output flattened
	// the same way alongside D.
	Embed(input []float32, batch, nMels, sliceSize int) (output []float32, dim int, err error)
	// InputShape reports the nMels and sliceSize dimensions of the model's
	// (batch, 1, nMels, sliceSize) input shape.
	InputShape() (nMels, sliceSize int, err error)
	Close() error
}
