// Command deejai scans an audio library into a similarity index and
// generates or reorders playlists from it (spec §6).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/deej-ai/deej-ai-go/internal/config"
	"github.com/deej-ai/deej-ai-go/internal/dberr"
	"github.com/deej-ai/deej-ai-go/internal/embedder"
	"github.com/deej-ai/deej-ai-go/internal/logging"
	"github.com/deej-ai/deej-ai-go/internal/m3u"
	"github.com/deej-ai/deej-ai-go/internal/playlist"
	"github.com/deej-ai/deej-ai-go/internal/reorder"
	"github.com/deej-ai/deej-ai-go/internal/scan"
)

// stringList accumulates repeated occurrences of a flag, e.g.
// --input a.mp3 --input b.mp3.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	log.SetFlags(0)

	var scanRoots stringList
	flag.Var(&scanRoots, "scan", "audio root to scan into the similarity index (repeatable)")
	generateMode := flag.String("generate", "", "append | connect | cluster")
	reorderMode := flag.Bool("reorder", false, "reorder an existing track list")

	var inputs stringList
	flag.Var(&inputs, "input", "seed or input track (repeatable)")

	modelPath := flag.String("model", "", "embedding model path")
	vecDir := flag.String("vec-dir", "", "index root directory")
	batchSize := flag.Int("batch-size", config.DefaultBatchSize, "scan aggregation batch size")
	epsilon := flag.Float64("epsilon", config.DefaultEpsilon, "aggregator neighbourhood epsilon")
	jobs := flag.Int("jobs", config.AutoJobs, "concurrent scan workers (-1 = NumCPU)")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "external decoder path")

	nsongs := flag.Int("nsongs", config.DefaultNSongs, "target playlist length")
	lookback := flag.Int("lookback", config.DefaultLookback, "append-mode lookback window")
	noise := flag.Float64("noise", config.DefaultNoise, "context-vector noise stddev factor")
	m3uOut := flag.String("m3u-out", "", "write the resulting playlist as an M3U file")
	reorderOutput := flag.Bool("reorder-output", false, "reorder the generated playlist before output")
	first := flag.String("first", "", "track to anchor at the front when reordering")
	debug := flag.Bool("debug", false, "verbose development logging")

	flag.Parse()

	logger, err := logging.New(*debug)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	modeCount := 0
	for _, on := range []bool{len(scanRoots) > 0, *generateMode != "", *reorderMode} {
		if on {
			modeCount++
		}
	}
	if modeCount != 1 {
		usageFatal("exactly one of --scan, --generate, --reorder is required")
	}
	if *vecDir == "" {
		usageFatal("--vec-dir is required")
	}

	ctx := context.Background()

	switch {
	case len(scanRoots) > 0:
		runScan(ctx, logger, scanRoots, *modelPath, *vecDir, *batchSize, *epsilon, *jobs, *ffmpegPath)
	case *generateMode != "":
		runGenerate(logger, *generateMode, inputs, *vecDir, *nsongs, *lookback, *noise, *m3uOut, *reorderOutput, *first)
	case *reorderMode:
		runReorder(logger, inputs, *vecDir, *first, *m3uOut)
	}
}

func usageFatal(msg string) {
	fmt.Fprintln(os.Stderr, "error:", msg)
	flag.Usage()
	os.Exit(1)
}

func runScan(ctx context.Context, logger *zap.Logger, roots stringList, modelPath, vecDir string, batchSize int, epsilon float64, jobs int, ffmpegPath string) {
	if modelPath == "" {
		usageFatal("--model is required for --scan")
	}
	if _, err := exec.LookPath(ffmpegPath); err != nil {
		if _, statErr := os.Stat(ffmpegPath); statErr != nil {
			usageFatal(fmt.Sprintf("decoder %q not found: %v", ffmpegPath, err))
		}
	}

	emb, err := embedder.New(modelPath)
	if err != nil {
		logger.Error("embedding model unavailable", zap.Error(err))
		os.Exit(1)
	}
	defer emb.Close()

	coord := &scan.Coordinator{
		Logger:   logger,
		Embedder: emb,
		VecDir:   vecDir,
		Scan: config.Scan{
			BatchSize: batchSize,
			Epsilon:   epsilon,
			Jobs:      jobs,
			FFmpeg:    ffmpegPath,
		},
	}
	if err := coord.Scan.Validate(); err != nil {
		usageFatal(err.Error())
	}

	if err := coord.Run(ctx, roots); err != nil {
		logger.Error("scan failed", zap.Error(err))
		os.Exit(1)
	}
}

func runGenerate(logger *zap.Logger, method string, inputs stringList, vecDir string, nsongs, lookback int, noise float64, m3uOut string, reorderAfter bool, first string) {
	if len(inputs) == 0 {
		usageFatal("--generate requires at least one --input")
	}
	genCfg := config.Generation{Method: method, NSongs: nsongs, Lookback: lookback, Noise: noise}
	if err := genCfg.Validate(); err != nil {
		usageFatal(err.Error())
	}

	gen, err := playlist.New(vecDir)
	if err != nil {
		fatalIOOrUser(err)
	}
	logDroppedSeeds(logger, gen, inputs)

	result := gen.Generate(method, inputs, nsongs, lookback, noise)

	if reorderAfter && len(result) > 0 {
		posRNG := rand.New(rand.NewSource(time.Now().UnixNano()))
		acceptRNG := rand.New(rand.NewSource(time.Now().UnixNano() + 1))
		result, err = reorder.Reorder(gen, result, first, posRNG, acceptRNG)
		if err != nil {
			fatalIOOrUser(err)
		}
	}

	emitPlaylist(result, m3uOut)
}

func runReorder(logger *zap.Logger, inputs stringList, vecDir, first, m3uOut string) {
	if len(inputs) == 0 {
		usageFatal("--reorder requires at least one --input")
	}

	gen, err := playlist.New(vecDir)
	if err != nil {
		fatalIOOrUser(err)
	}
	logDroppedSeeds(logger, gen, inputs)

	posRNG := rand.New(rand.NewSource(time.Now().UnixNano()))
	acceptRNG := rand.New(rand.NewSource(time.Now().UnixNano() + 1))
	result, err := reorder.Reorder(gen, inputs, first, posRNG, acceptRNG)
	if err != nil {
		fatalIOOrUser(err)
	}

	emitPlaylist(result, m3uOut)
}

// logDroppedSeeds emits the spec's per-drop notice (§7 MissingSeed) for any
// input absent from the bundled vector map.
func logDroppedSeeds(logger *zap.Logger, gen *playlist.Generator, inputs stringList) {
	_, dropped := gen.MissingSeeds(inputs)
	if len(dropped) > 0 {
		logger.Warn("dropping seeds absent from bundled vector map", zap.Strings("seeds", dropped))
	}
}

func emitPlaylist(tracks []string, m3uOut string) {
	for _, t := range tracks {
		fmt.Println(t)
	}
	if m3uOut == "" {
		return
	}
	abs, err := filepath.Abs(m3uOut)
	if err != nil {
		fatalIOOrUser(err)
	}
	if err := m3u.Write(abs, tracks); err != nil {
		fatalIOOrUser(err)
	}
}

func fatalIOOrUser(err error) {
	if errors.Is(err, dberr.ErrUserError) {
		usageFatal(err.Error())
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
