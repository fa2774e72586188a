package scan

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
}

func hasAudioExtension(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// discoverAudioFiles walks every root, collecting absolute paths of files
// with a recognised audio extension, and shuffles the result (spec §4.5 /
// original `find_audio_files_recursively` + the scan loop's upfront
// shuffle).
func discoverAudioFiles(roots []string, rng *rand.Rand) ([]string, error) {
	var out []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			if hasAudioExtension(abs) {
				out = append(out, abs)
			}
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if hasAudioExtension(path) {
				apath, err := filepath.Abs(path)
				if err == nil {
					out = append(out, apath)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}
