// Package landmark is the Landmark Extractor: it picks local spectral
// peaks from a Spectral Front-End spectrogram and pairs each anchor peak
// with nearby later peaks to emit deterministic, translation-equivariant
// (hash, t_ref) records.
package landmark

import (
	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/sonicgen/sonicgen/internal/sfe"
)

// FanParams bounds the anchor->target pairing.
type FanParams struct {
	MaxDT  int // 1 <= t_b - t_a <= MaxDT
	MaxDF  int // |f_b - f_a| <= MaxDF
	FanOut int // max pairs emitted per anchor
}

// Extract runs peak picking followed by anchor->target pairing over spec,
// returning an ordered list of (hash, t_ref) records in anchor-major,
// fan-minor order. Duplicates are permitted in the output; callers that
// persist the result (internal/ingest) deduplicate at the storage layer.
//
// Because peaks are picked as strict local maxima and pairing only looks
// forward in time within a bounded window, prepending k frames of silence
// shifts every t_ref by exactly k without otherwise changing which hashes
// are emitted (aside from boundary effects within FanParams.MaxDT of
// either end) — the translation equivariance the matching algorithm
// depends on.
func Extract(spec *sfe.Spectrogram, peakParams PeakParams, fan FanParams) []model.QueryHash {
	peaks := ExtractPeaks(spec, peakParams)
	return Pair(peaks, fan)
}

// Pair emits (hash, t_ref) records from an already-picked, (t, f)-sorted
// peak list.
func Pair(peaks []Peak, fan FanParams) []model.QueryHash {
	records := make([]model.QueryHash, 0, len(peaks)*fan.FanOut)

	for i, anchor := range peaks {
		emitted := 0
		for j := i + 1; j < len(peaks) && emitted < fan.FanOut; j++ {
			target := peaks[j]

			dt := target.T - anchor.T
			if dt < 1 || dt > fan.MaxDT {
				if dt > fan.MaxDT {
					// peaks are t-sorted: every later target is even
					// further away, nothing left to pair for this anchor.
					break
				}
				continue
			}
			df := target.F - anchor.F
			if df < 0 {
				df = -df
			}
			if df > fan.MaxDF {
				continue
			}

			records = append(records, model.QueryHash{
				Hash: Hash(anchor.F, target.F, dt),
				TRef: uint32(anchor.T),
			})
			emitted++
		}
	}

	return records
}
