// Package store persists and retrieves the two on-disk artefact kinds of
// spec §4.1: per-file slice matrices and the bundled per-track vector map,
// in a shared little-endian binary layout.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/deej-ai/deej-ai-go/internal/dberr"
)

// Matrix is a row-major float32 matrix: S rows (slices) by D columns
// (embedding dimensionality).
type Matrix struct {
	Rows int
	Cols int
	Data []float32 // len == Rows*Cols, row-major
}

// Row returns a view of the i-th row.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// MatrixMap is the in-memory form of both per-file slice maps and the
// bundled vector map (where every matrix has Rows==1).
type MatrixMap map[string]Matrix

// maxReasonableDim guards against corrupt length fields causing a huge
// allocation before the byte count is even checked against file size.
const maxReasonableDim = 1 << 28 // ~268M float32s (1GiB) per matrix

// SaveMap writes m to path, atomically from the reader's perspective: it
// writes to a temp file in the same directory and renames it into place.
func SaveMap(path string, m MatrixMap) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", dberr.ErrIOError, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op once renamed
	}()

	w := bufio.NewWriter(tmp)
	if err := writeMap(w, m); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write map: %v", dberr.ErrIOError, err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: flush map: %v", dberr.ErrIOError, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync map: %v", dberr.ErrIOError, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", dberr.ErrIOError, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename into place: %v", dberr.ErrIOError, err)
	}
	return nil
}

func writeMap(w io.Writer, m MatrixMap) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m))); err != nil {
		return err
	}
	for key, mat := range m {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(key))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, key); err != nil {
			return err
		}
		if err := writeMatrix(w, mat); err != nil {
			return err
		}
	}
	return nil
}

func writeMatrix(w io.Writer, mat Matrix) error {
	if err := binary.Write(w, binary.LittleEndian, int32(mat.Rows)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(mat.Cols)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, mat.Data)
}

// LoadMap reads path into a MatrixMap. A missing file yields an empty,
// non-nil map and no error. A truncated file, an oversized length field,
// or a size mismatch yields ErrCorruptedIndex.
func LoadMap(path string) (MatrixMap, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return MatrixMap{}, nil
		}
		return nil, fmt.Errorf("%w: open %s: %v", dberr.ErrIOError, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", dberr.ErrIOError, path, err)
	}

	r := bufio.NewReader(f)
	m, err := readMap(r, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", dberr.ErrCorruptedIndex, path, err)
	}
	return m, nil
}

func readMap(r io.Reader, fileSize int64) (MatrixMap, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		if err == io.EOF {
			return MatrixMap{}, nil
		}
		return nil, err
	}

	// An entry is at least 4 (key_len) + 4 (rows) + 4 (cols) bytes; reject
	// a count that could not possibly fit in the file.
	if int64(count)*12 > fileSize {
		return nil, fmt.Errorf("entry count %d implausible for file size %d", count, fileSize)
	}

	m := make(MatrixMap, count)
	for i := uint32(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("reading key length for entry %d: %w", i, err)
		}
		if int64(keyLen) > fileSize {
			return nil, fmt.Errorf("key length %d implausible for file size %d", keyLen, fileSize)
		}
		keyBuf := make([]byte, keyLen)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return nil, fmt.Errorf("reading key for entry %d: %w", i, err)
		}

		mat, err := readMatrix(r, fileSize)
		if err != nil {
			return nil, fmt.Errorf("reading matrix for entry %d (%s): %w", i, keyBuf, err)
		}
		m[string(keyBuf)] = mat
	}
	return m, nil
}

func readMatrix(r io.Reader, fileSize int64) (Matrix, error) {
	var rows, cols int32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return Matrix{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return Matrix{}, err
	}
	if rows < 0 || cols < 0 {
		return Matrix{}, fmt.Errorf("negative matrix dimensions (%d,%d)", rows, cols)
	}
	total := int64(rows) * int64(cols)
	if total > maxReasonableDim || total*4 > fileSize {
		return Matrix{}, fmt.Errorf("matrix dimensions (%d,%d) implausible for file size %d", rows, cols, fileSize)
	}
	data := make([]float32, total)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return Matrix{}, err
	}
	return Matrix{Rows: int(rows), Cols: int(cols), Data: data}, nil
}

// VectorOf flattens a single-row matrix into a vector. Matrices with more
// than one row (raw slice matrices) are not valid inputs to this call;
// callers use it only on the bundled, already-aggregated map.
func VectorOf(m Matrix) []float32 {
	return m.Data
}

// L2Norm returns the Euclidean norm of v.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
