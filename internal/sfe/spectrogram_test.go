package sfe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTooShortReturnsEmpty(t *testing.T) {
	samples := make([]float64, 100)
	spec := Compute(samples, 2048, 512, Hann(2048))
	require.NotNil(t, spec)
	assert.Equal(t, 0, spec.NumFrames())
	assert.Equal(t, 0, spec.NumBins())
}

func TestComputeFrameCountAndBins(t *testing.T) {
	const fftSize, hop = 2048, 512
	samples := make([]float64, fftSize*4)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 22050)
	}

	spec := Compute(samples, fftSize, hop, Hann(fftSize))
	want := 1 + (len(samples)-fftSize)/hop
	assert.Equal(t, want, spec.NumFrames())
	assert.Equal(t, fftSize/2, spec.NumBins())
	assert.Equal(t, hop, spec.Hop)
}

func TestComputeDeterministic(t *testing.T) {
	samples := make([]float64, 2048*3)
	for i := range samples {
		samples[i] = math.Sin(2*math.Pi*220*float64(i)/22050) + 0.3*math.Sin(2*math.Pi*880*float64(i)/22050)
	}

	a := Compute(samples, 2048, 512, Hann(2048))
	b := Compute(samples, 2048, 512, Hann(2048))
	require.Equal(t, len(a.Frames), len(b.Frames))
	for t1 := range a.Frames {
		for f := range a.Frames[t1] {
			assert.InDelta(t, a.Frames[t1][f], b.Frames[t1][f], 1e-12)
		}
	}
}

func TestHannEndpointsZero(t *testing.T) {
	w := Hann(8)
	assert.InDelta(t, 0, w[0], 1e-9)
	assert.InDelta(t, 0, w[len(w)-1], 1e-9)
}
