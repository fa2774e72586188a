//go:build !windows

package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/deej-ai/deej-ai-go/internal/dberr"
	"golang.org/x/sys/unix"
)

// LoadMapMmap reads path the same way LoadMap does, but parses directly out
// of a memory-mapped view of the file instead of a buffered copy. Intended
// for the generator/reorderer's one-shot, read-only startup load of a
// potentially large bundled map; grounded on AlexC1991-VoxAI_IDE's
// mmap_store.go header/remap approach, adapted to this package's
// variable-length entry layout (no fixed header, so the whole file is
// mapped and walked as a byte slice rather than addressed by fixed
// offsets).
func LoadMapMmap(path string) (MatrixMap, error) {
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
	size := info.Size()
	if size == 0 {
		return MatrixMap{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", dberr.ErrIOError, path, err)
	}
	defer unix.Munmap(data)

	m, err := parseMappedBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", dberr.ErrCorruptedIndex, path, err)
	}
	return m, nil
}

func parseMappedBytes(data []byte) (MatrixMap, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("file too small for entry count")
	}
	count := binary.LittleEndian.Uint32(data[:4])
	off := 4
	if int64(count)*12 > int64(len(data)) {
		return nil, fmt.Errorf("entry count %d implausible for file size %d", count, len(data))
	}

	m := make(MatrixMap, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(data) {
			return nil, fmt.Errorf("truncated key length at entry %d", i)
		}
		keyLen := int(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
		if keyLen < 0 || off+keyLen > len(data) {
			return nil, fmt.Errorf("truncated key at entry %d", i)
		}
		key := string(data[off : off+keyLen])
		off += keyLen

		if off+8 > len(data) {
			return nil, fmt.Errorf("truncated matrix header at entry %d", i)
		}
		rows := int32(binary.LittleEndian.Uint32(data[off : off+4]))
		cols := int32(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if rows < 0 || cols < 0 {
			return nil, fmt.Errorf("negative matrix dimensions at entry %d", i)
		}
		total := int64(rows) * int64(cols)
		if total > maxReasonableDim {
			return nil, fmt.Errorf("matrix dimensions (%d,%d) implausible at entry %d", rows, cols, i)
		}
		nbytes := int(total * 4)
		if off+nbytes > len(data) {
			return nil, fmt.Errorf("truncated matrix data at entry %d", i)
		}
		vec := make([]float32, total)
		for j := range vec {
			bits := binary.LittleEndian.Uint32(data[off+4*j : off+4*j+4])
			vec[j] = float32frombits(bits)
		}
		off += nbytes

		m[key] = Matrix{Rows: int(rows), Cols: int(cols), Data: vec}
	}
	return m, nil
}
