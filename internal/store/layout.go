package store

import (
	"fmt"
	"path/filepath"
)

const (
	// BundledDirName is the subdirectory holding the bundled map and
	// transient batch files.
	BundledDirName = "bundled"
	// BundledVecsFilename is the authoritative bundled vector map file.
	BundledVecsFilename = "audio_vecs.bin"
)

// BundledDir returns <vecDir>/bundled.
func BundledDir(vecDir string) string {
	return filepath.Join(vecDir, BundledDirName)
}

// BundledVecsPath returns <vecDir>/bundled/audio_vecs.bin.
func BundledVecsPath(vecDir string) string {
	return filepath.Join(BundledDir(vecDir), BundledVecsFilename)
}

// BatchPath returns <vecDir>/bundled/batch_<n>.bin.
func BatchPath(vecDir string, n int) string {
	return filepath.Join(BundledDir(vecDir), fmt.Sprintf("batch_%d.bin", n))
}

// LoadMapFast loads path via the platform's fastest read-only path. Use
// for one-shot, read-only loads (generator/reorderer startup); the scan
// coordinator uses LoadMap directly since it mutates afterward.
func LoadMapFast(path string) (MatrixMap, error) {
	return LoadMapMmap(path)
}
