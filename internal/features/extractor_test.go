package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/dsp/fourier"
)

func TestHannWindowEndpointsAreZero(t *testing.T) {
	w := hann(8)
	assert.InDelta(t, 0.0, w[0], 1e-9)
	assert.InDelta(t, 0.0, w[7], 1e-9)
}

func TestPower2dbClampsNearZero(t *testing.T) {
	got := power2db(0)
	assert.InDelta(t, -100.0, got, 1e-6)
}

func TestMelFilterbankShapeAndNonNegative(t *testing.T) {
	filt := melFilterbank(22050, 2048, 16, 0, 11025)
	assert.Len(t, filt, 16)
	assert.Len(t, filt[0], 1025)
	for _, row := range filt {
		for _, w := range row {
			assert.GreaterOrEqual(t, w, 0.0)
		}
	}
}

func TestMelToHzAndHzToMelRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 500, 1000, 4000, 11025} {
		mel := hzToMel(hz)
		got := melToHz(mel)
		assert.InDelta(t, hz, got, 1e-6)
	}
}

func TestMelSpectrogramProducesExpectedFrameCount(t *testing.T) {
	spec := Spec{SampleRate: 22050, NFFT: 256, HopLength: 64, NMels: 8}
	pcm := make([]float32, 1000)
	for i := range pcm {
		pcm[i] = float32(math.Sin(float64(i) * 0.1))
	}
	mel := melSpectrogram(pcm, spec)
	assert.Len(t, mel, spec.NMels)
	// Centred framing pads 128 samples per side: 1 + (1000+256-256)/64 = 16.
	assert.Len(t, mel[0], 16)
}

func TestStftPowerIsNonNegative(t *testing.T) {
	win := hann(64)
	x := make([]float32, 256)
	for i := range x {
		x[i] = float32(math.Sin(float64(i) * 0.2))
	}
	power := stftPower(x, 64, 32, win, fourier.NewFFT(64))
	for _, frame := range power {
		for _, v := range frame {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}
