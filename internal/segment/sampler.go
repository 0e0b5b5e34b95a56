// Package segment is the Segment Sampler: used only on the query path, it
// keeps long inputs tractable by selecting a length-dependent number of
// evenly spaced, contiguous windows over a fingerprint list instead of
// matching the whole thing.
package segment

import (
	"math"

	"github.com/sonicgen/sonicgen/internal/model"
)

// anchor is one (L, numSegments, hashesPerSegment) table row.
type anchor struct {
	l                  float64
	numSegments        float64
	hashesPerSegment   float64
}

// anchors is the piecewise-linear interpolation table from the Segment
// Sampler's design. Interpolation runs on log2(L) between consecutive
// anchors (resolving the spec's open question): the anchors are
// themselves roughly log-spaced in L, so a fit linear in log2(L) passes
// through all four points without the kink a linear-in-L fit would leave
// near the first segment, and it degrades gracefully for L far outside
// the table (clamped at the ends).
var anchors = []anchor{
	{l: 10_000, numSegments: 3, hashesPerSegment: 1000},
	{l: 50_000, numSegments: 5, hashesPerSegment: 1500},
	{l: 200_000, numSegments: 8, hashesPerSegment: 2000},
	{l: 1_000_000, numSegments: 12, hashesPerSegment: 3000},
}

// Params is the resolved (num_segments, hashes_per_segment) pair for a
// given fingerprint list length.
type Params struct {
	NumSegments      int
	HashesPerSegment int
}

// Resolve returns the segment parameters for a fingerprint list of
// length l, via piecewise-linear interpolation on log2(l) between the
// anchor points, clamped outside [10000, 1000000].
func Resolve(l int) Params {
	lf := float64(l)
	logL := math.Log2(lf)

	if lf <= anchors[0].l {
		return Params{
			NumSegments:      int(math.Round(anchors[0].numSegments)),
			HashesPerSegment: int(math.Round(anchors[0].hashesPerSegment)),
		}
	}
	if lf >= anchors[len(anchors)-1].l {
		last := anchors[len(anchors)-1]
		return Params{
			NumSegments:      int(math.Round(last.numSegments)),
			HashesPerSegment: int(math.Round(last.hashesPerSegment)),
		}
	}

	for i := 0; i < len(anchors)-1; i++ {
		lo, hi := anchors[i], anchors[i+1]
		if lf < lo.l || lf > hi.l {
			continue
		}
		logLo, logHi := math.Log2(lo.l), math.Log2(hi.l)
		frac := (logL - logLo) / (logHi - logLo)

		numSegments := lo.numSegments + frac*(hi.numSegments-lo.numSegments)
		hashesPerSegment := lo.hashesPerSegment + frac*(hi.hashesPerSegment-lo.hashesPerSegment)

		return Params{
			NumSegments:      int(math.Round(numSegments)),
			HashesPerSegment: int(math.Round(hashesPerSegment)),
		}
	}

	// Unreachable given the clamps above, but keep a safe fallback.
	last := anchors[len(anchors)-1]
	return Params{
		NumSegments:      int(math.Round(last.numSegments)),
		HashesPerSegment: int(math.Round(last.hashesPerSegment)),
	}
}

// Sample selects Params(len(fp)).NumSegments evenly spaced contiguous
// windows over fp and returns their concatenation, preserving each
// entry's original TRef. minMatchable is the caller's MinMatchable
// threshold: Sample returns fp unchanged (and ok=false) when len(fp) is
// below it, signalling the caller should not attempt a match at all.
func Sample(fp []model.QueryHash, minMatchable int) (sampled []model.QueryHash, ok bool) {
	l := len(fp)
	if l < minMatchable {
		return fp, false
	}

	p := Resolve(l)
	hashesPerSegment := p.HashesPerSegment
	if hashesPerSegment > l {
		hashesPerSegment = l
	}
	numSegments := p.NumSegments
	if numSegments < 1 {
		numSegments = 1
	}

	out := make([]model.QueryHash, 0, numSegments*hashesPerSegment)
	for k := 0; k < numSegments; k++ {
		start := 0
		if numSegments > 1 {
			start = k * (l - hashesPerSegment) / (numSegments - 1)
		}
		end := start + hashesPerSegment
		if end > l {
			end = l
		}
		out = append(out, fp[start:end]...)
	}

	return out, true
}
