// Package sfe is the Spectral Front-End: it turns a mono PCM waveform
// into a time-frequency magnitude spectrogram on which the Landmark
// Extractor picks peaks. All downstream components operate on integer
// (f, t) coordinates, never Hz or seconds, so matching stays
// sample-rate independent once SR is fixed.
package sfe

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Spectrogram is a magnitude (not power) short-time spectrum, indexed
// Frames[t][f]. Hop is the frame hop in samples, used by callers to map
// frame index back to time: t * Hop / sampleRate.
type Spectrogram struct {
	Frames [][]float64
	Hop    int
}

// Hann returns an n-point Hann window, w[i] = 0.5 - 0.5*cos(2*pi*i/(n-1)).
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Compute runs an STFT over samples with the given FFT size and hop,
// windowed with window (typically Hann(fftSize)). It returns an empty
// Spectrogram (no error) when samples is shorter than fftSize, per the
// Spectral Front-End's documented failure mode — downstream components
// must accept zero frames and emit zero hashes.
func Compute(samples []float64, fftSize, hop int, window []float64) *Spectrogram {
	if len(samples) < fftSize {
		return &Spectrogram{Frames: nil, Hop: hop}
	}

	nFrames := 1 + (len(samples)-fftSize)/hop
	frames := make([][]float64, 0, nFrames)

	frame := make([]float64, fftSize)
	for start := 0; start+fftSize <= len(samples); start += hop {
		for i := 0; i < fftSize; i++ {
			frame[i] = samples[start+i] * window[i]
		}
		spectrum := fft.FFTReal(frame)
		frames = append(frames, magnitude(spectrum))
	}

	return &Spectrogram{Frames: frames, Hop: hop}
}

// magnitude returns |spectrum| for the first half of the bins (the
// spectrogram is real-valued input, so the upper half mirrors the lower
// half and carries no additional information for peak picking).
func magnitude(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		re, im := real(spectrum[i]), imag(spectrum[i])
		mag[i] = math.Sqrt(re*re + im*im)
	}
	return mag
}

// NumFrames returns len(s.Frames), or 0 for a nil Spectrogram.
func (s *Spectrogram) NumFrames() int {
	if s == nil {
		return 0
	}
	return len(s.Frames)
}

// NumBins returns the number of frequency bins per frame, or 0 when the
// spectrogram is empty.
func (s *Spectrogram) NumBins() int {
	if s == nil || len(s.Frames) == 0 {
		return 0
	}
	return len(s.Frames[0])
}
