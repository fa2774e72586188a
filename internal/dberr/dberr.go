// Package dberr defines the sentinel error taxonomy shared by every
// component of the scan/generate/reorder pipeline.
package dberr

import "errors"

var (
	// ErrUserError marks invalid flags, an unknown method, or a missing
	// required path. Callers report it with a usage hint and exit non-zero.
	ErrUserError = errors.New("user error")

	// ErrIOError marks a directory-creation or index read/write failure.
	// Fatal during scan and at generation load time.
	ErrIOError = errors.New("io error")

	// ErrCorruptedIndex marks a malformed binary index artefact: a
	// truncated file, an oversized length field, or a size mismatch.
	ErrCorruptedIndex = errors.New("corrupted index")

	// ErrDecodeFailure marks a per-file audio decode failure.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrEmbeddingFailure marks a per-file embedding model failure.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrTooShort marks decoded PCM shorter than one slice.
	ErrTooShort = errors.New("audio too short")

	// ErrTooLong marks audio exceeding the decode budget.
	ErrTooLong = errors.New("audio too long")

	// ErrDegenerateEmbedding marks a zero-norm slice row.
	ErrDegenerateEmbedding = errors.New("degenerate embedding")

	// ErrMissingSeed marks a seed track absent from the bundled map.
	ErrMissingSeed = errors.New("missing seed")

	// ErrModelUnavailable marks an embedding driver built without its
	// native runtime (see internal/embedder's cgo/stub split).
	ErrModelUnavailable = errors.New("embedding model runtime unavailable")

	// ErrScanFailed marks a fatal, non-recoverable scan error (root
	// discovery, worker dispatch, or batch aggregation). Directory
	// preparation and index write failures are reported as ErrIOError.
	ErrScanFailed = errors.New("scan failed")
)
