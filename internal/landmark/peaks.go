package landmark

import (
	"sort"

	"github.com/sonicgen/sonicgen/internal/sfe"
)

// Peak is one local maximum of the spectrogram magnitude.
type Peak struct {
	T int // frame index
	F int // bin index
}

// PeakParams controls peak picking: a point is a peak iff its magnitude
// is a strict local maximum within a (2*FreqRadius+1) x (2*TimeRadius+1)
// neighborhood and exceeds the Percentile-th percentile of the whole
// spectrogram.
type PeakParams struct {
	FreqRadius int
	TimeRadius int
	Percentile float64 // 0-100
}

// ExtractPeaks returns every peak in spec, ordered by (t, f) ascending —
// the tie-break and output order the Landmark Extractor's pairing stage
// relies on.
func ExtractPeaks(spec *sfe.Spectrogram, p PeakParams) []Peak {
	nFrames := spec.NumFrames()
	nBins := spec.NumBins()
	if nFrames == 0 || nBins == 0 {
		return nil
	}

	floor := percentile(spec.Frames, p.Percentile)

	peaks := make([]Peak, 0, nFrames/4+1)
	for t := 0; t < nFrames; t++ {
		row := spec.Frames[t]
		for f := 0; f < nBins; f++ {
			mag := row[f]
			if mag <= floor {
				continue
			}
			if isStrictLocalMax(spec, t, f, mag, p.TimeRadius, p.FreqRadius) {
				peaks = append(peaks, Peak{T: t, F: f})
			}
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].T != peaks[j].T {
			return peaks[i].T < peaks[j].T
		}
		return peaks[i].F < peaks[j].F
	})
	return peaks
}

func isStrictLocalMax(spec *sfe.Spectrogram, t, f int, mag float64, dtRadius, dfRadius int) bool {
	nFrames := spec.NumFrames()
	nBins := spec.NumBins()

	for dt := -dtRadius; dt <= dtRadius; dt++ {
		nt := t + dt
		if nt < 0 || nt >= nFrames {
			continue
		}
		row := spec.Frames[nt]
		for df := -dfRadius; df <= dfRadius; df++ {
			if dt == 0 && df == 0 {
				continue
			}
			nf := f + df
			if nf < 0 || nf >= nBins {
				continue
			}
			if row[nf] >= mag {
				return false
			}
		}
	}
	return true
}

// percentile returns the pct-th percentile (0-100) of every magnitude in
// frames, via linear interpolation between the two bracketing order
// statistics (the common "nearest rank with interpolation" definition).
func percentile(frames [][]float64, pct float64) float64 {
	n := 0
	for _, row := range frames {
		n += len(row)
	}
	if n == 0 {
		return 0
	}

	flat := make([]float64, 0, n)
	for _, row := range frames {
		flat = append(flat, row...)
	}
	sort.Float64s(flat)

	if pct <= 0 {
		return flat[0]
	}
	if pct >= 100 {
		return flat[len(flat)-1]
	}

	rank := pct / 100 * float64(len(flat)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(flat) {
		return flat[lo]
	}
	frac := rank - float64(lo)
	return flat[lo]*(1-frac) + flat[hi]*frac
}
