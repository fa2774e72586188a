// Package features turns a decoded audio file into the normalised
// mel-spectrogram tensor the embedding model expects (spec §4.2).
package features

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"time"

	"github.com/deej-ai/deej-ai-go/internal/dberr"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Spec describes the fixed geometry the embedding model was trained
// against; NMels and SliceSize come from the model's own input shape
// (spec §4.3), not from a constant in this package.
type Spec struct {
	SampleRate   int
	NFFT         int
	HopLength    int
	NMels        int
	SliceSize    int
	DecodeBudget time.Duration
	FFmpegPath   string
}

// Tensor is the flattened (batch, 1, n_mels, slice_size) input tensor, row
// major in that order, ready to hand to the embedding driver.
type Tensor struct {
	Batch     int
	NMels     int
	SliceSize int
	Data      []float32
}

// FromFile decodes audioPath, computes its mel-spectrogram, slices it into
// slice_size-wide windows and returns the stacked, normalised tensor. It
// returns a dberr sentinel (ErrTooShort/ErrTooLong/ErrDecodeFailure) via
// wrapping on every rejection path described in spec §4.2.
func FromFile(ctx context.Context, spec Spec, audioPath string) (Tensor, error) {
	budget := spec.DecodeBudget
	if budget <= 0 {
		budget = 12 * time.Minute
	}
	dctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	budgetSeconds := int(budget.Seconds())
	pcm, err := decodeToMonoFloat32(dctx, spec.FFmpegPath, audioPath, spec.SampleRate, budgetSeconds)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %s: %v", dberr.ErrDecodeFailure, audioPath, err)
	}
	maxSamples := budgetSeconds * spec.SampleRate
	if maxSamples > 0 && len(pcm) > maxSamples {
		return Tensor{}, fmt.Errorf("%w: %s", dberr.ErrTooLong, audioPath)
	}
	if len(pcm) < spec.SliceSize {
		return Tensor{}, fmt.Errorf("%w: %s", dberr.ErrTooShort, audioPath)
	}

	mel := melSpectrogram(pcm, spec)
	cols := len(mel[0])
	batch := cols / spec.SliceSize
	if batch == 0 {
		return Tensor{}, fmt.Errorf("%w: %s", dberr.ErrTooShort, audioPath)
	}

	out := Tensor{Batch: batch, NMels: spec.NMels, SliceSize: spec.SliceSize}
	out.Data = make([]float32, batch*spec.NMels*spec.SliceSize)

	for s := 0; s < batch; s++ {
		offset := s * spec.SliceSize
		slice := make([][]float64, spec.NMels)
		minVal, maxVal := math.Inf(1), math.Inf(-1)
		for m := 0; m < spec.NMels; m++ {
			row := make([]float64, spec.SliceSize)
			for c := 0; c < spec.SliceSize; c++ {
				db := power2db(mel[m][offset+c])
				row[c] = db
				if db < minVal {
					minVal = db
				}
				if db > maxVal {
					maxVal = db
				}
			}
			slice[m] = row
		}

		denom := maxVal - minVal
		base := s * spec.NMels * spec.SliceSize
		for m := 0; m < spec.NMels; m++ {
			for c := 0; c < spec.SliceSize; c++ {
				v := 0.0
				if denom != 0 {
					v = (slice[m][c] - minVal) / denom
				}
				out.Data[base+m*spec.SliceSize+c] = float32(v)
			}
		}
	}
	return out, nil
}

// power2db matches librosa.power_to_db's default reference (ref=1.0),
// clamped the same way (10*log10(max(x, eps))).
func power2db(power float64) float64 {
	const eps = 1e-10
	if power < eps {
		power = eps
	}
	return 10 * math.Log10(power)
}

// melSpectrogram returns an (n_mels x frames) power mel-spectrogram.
func melSpectrogram(pcm []float32, spec Spec) [][]float64 {
	win := hann(spec.NFFT)
	fft := fourier.NewFFT(spec.NFFT)
	power := stftPower(pcm, spec.NFFT, spec.HopLength, win, fft)

	filt := melFilterbank(spec.SampleRate, spec.NFFT, spec.NMels, 0, float64(spec.SampleRate)/2)
	frames := len(power)
	nBins := spec.NFFT/2 + 1

	mel := make([][]float64, spec.NMels)
	for m := 0; m < spec.NMels; m++ {
		mel[m] = make([]float64, frames)
		row := filt[m]
		for t := 0; t < frames; t++ {
			var sum float64
			frame := power[t]
			for k := 0; k < nBins; k++ {
				sum += row[k] * frame[k]
			}
			mel[m][t] = sum
		}
	}
	return mel
}

// stftPower returns, for each centred frame, the power spectrum
// |FFT(window*frame)|^2 over the first n/2+1 bins.
func stftPower(x []float32, n, hop int, win []float64, fft *fourier.FFT) [][]float64 {
	pad := n / 2
	padded := make([]float64, len(x)+2*pad)
	for i, v := range x {
		padded[pad+i] = float64(v)
	}

	frames := 1 + (len(padded)-n)/hop
	if frames < 0 {
		frames = 0
	}
	out := make([][]float64, frames)
	buf := make([]float64, n)
	for i := 0; i < frames; i++ {
		start := i * hop
		for k := 0; k < n; k++ {
			buf[k] = padded[start+k] * win[k]
		}
		coeffs := fft.Coefficients(nil, buf)
		nBins := n/2 + 1
		row := make([]float64, nBins)
		for k := 0; k < nBins; k++ {
			c := coeffs[k]
			row[k] = real(c)*real(c) + imag(c)*imag(c)
		}
		out[i] = row
	}
	return out
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// melFilterbank builds the (nMels x (nFFT/2+1)) Slaney-normalised
// triangular mel filterbank librosa.filters.mel produces by default.
func melFilterbank(sampleRate, nFFT, nMels int, fMin, fMax float64) [][]float64 {
	nBins := nFFT/2 + 1
	fftFreqs := make([]float64, nBins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}

	melMin := hzToMel(fMin)
	melMax := hzToMel(fMax)
	melPoints := make([]float64, nMels+2)
	for i := range melPoints {
		melPoints[i] = melMin + (melMax-melMin)*float64(i)/float64(nMels+1)
	}
	hzPoints := make([]float64, len(melPoints))
	for i, m := range melPoints {
		hzPoints[i] = melToHz(m)
	}

	weights := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lower, center, upper := hzPoints[m], hzPoints[m+1], hzPoints[m+2]
		row := make([]float64, nBins)
		enorm := 2.0 / (upper - lower)
		for k, f := range fftFreqs {
			var w float64
			if f > lower && f < center {
				w = (f - lower) / (center - lower)
			} else if f >= center && f < upper {
				w = (upper - f) / (upper - center)
			}
			if w < 0 {
				w = 0
			}
			row[k] = w * enorm
		}
		weights[m] = row
	}
	return weights
}

// hzToMel/melToHz use the Slaney scale (librosa's default, htk=False).
func hzToMel(hz float64) float64 {
	const (
		fMin       = 0.0
		fSp        = 200.0 / 3
		minLogHz   = 1000.0
		minLogMel  = (minLogHz - fMin) / fSp
		logStep    = 0.06875177742094912 // ln(6.4)/27
	)
	if hz < minLogHz {
		return (hz - fMin) / fSp
	}
	return minLogMel + math.Log(hz/minLogHz)/logStep
}

func melToHz(mel float64) float64 {
	const (
		fMin      = 0.0
		fSp       = 200.0 / 3
		minLogHz  = 1000.0
		minLogMel = (minLogHz - fMin) / fSp
		logStep   = 0.06875177742094912
	)
	if mel < minLogMel {
		return fMin + fSp*mel
	}
	return minLogHz * math.Exp(logStep*(mel-minLogMel))
}

// decodeToMonoFloat32 shells out to ffmpeg, producing raw little-endian
// f32le mono PCM at sampleRate (spec §4.2 AMBIENT). budgetSeconds, if > 0,
// is passed to ffmpeg's -t flag with a one-second margin so the decoded
// buffer itself stays bounded instead of relying solely on the wall-clock
// context deadline; the margin lets FromFile still tell an over-budget
// track apart from one that ends exactly at the budget.
func decodeToMonoFloat32(ctx context.Context, ffmpegPath, path string, sampleRate, budgetSeconds int) ([]float32, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	args := []string{
		"-hide_banner", "-v", "error",
		"-i", path,
	}
	if budgetSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", budgetSeconds+1))
	}
	args = append(args,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-f", "f32le",
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, stderr.String())
	}

	raw := out.Bytes()
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("unexpected pcm byte length %d", len(raw))
	}
	n := len(raw) / 4
	samples := make([]float32, n)
	r := bytes.NewReader(raw)
	var b [4]byte
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		bits := binary.LittleEndian.Uint32(b[:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}
