// Package m3u writes playlists to the M3U format (spec §6).
package m3u

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/deej-ai/deej-ai-go/internal/dberr"
)

// Write writes tracks to path as an M3U playlist (#EXTM3U header followed
// by one path per line), appending ".m3u" if path lacks it.
func Write(path string, tracks []string) error {
	if !strings.HasSuffix(path, ".m3u") {
		path += ".m3u"
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", dberr.ErrIOError, path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, "#EXTM3U"); err != nil {
		return fmt.Errorf("%w: %v", dberr.ErrIOError, err)
	}
	for _, t := range tracks {
		if _, err := fmt.Fprintln(w, t); err != nil {
			return fmt.Errorf("%w: %v", dberr.ErrIOError, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %v", dberr.ErrIOError, path, err)
	}
	return f.Sync()
}
