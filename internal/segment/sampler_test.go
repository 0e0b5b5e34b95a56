package segment

import (
	"testing"

	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAnchorPoints(t *testing.T) {
	cases := []struct {
		l    int
		want Params
	}{
		{10_000, Params{3, 1000}},
		{50_000, Params{5, 1500}},
		{200_000, Params{8, 2000}},
		{1_000_000, Params{12, 3000}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Resolve(c.l), "L=%d", c.l)
	}
}

func TestResolveClampsOutsideRange(t *testing.T) {
	assert.Equal(t, Resolve(10_000), Resolve(500))
	assert.Equal(t, Resolve(1_000_000), Resolve(5_000_000))
}

func TestResolveInterpolatesBetweenAnchors(t *testing.T) {
	p := Resolve(100_000)
	assert.True(t, p.NumSegments > 5 && p.NumSegments < 8, "got %d", p.NumSegments)
	assert.True(t, p.HashesPerSegment > 1500 && p.HashesPerSegment < 2000, "got %d", p.HashesPerSegment)
}

func fpOfLength(n int) []model.QueryHash {
	fp := make([]model.QueryHash, n)
	for i := range fp {
		fp[i] = model.QueryHash{Hash: "x", TRef: uint32(i)}
	}
	return fp
}

func TestSampleBelowMinMatchableReturnsUnchanged(t *testing.T) {
	fp := fpOfLength(500)
	out, ok := Sample(fp, 10_000)
	assert.False(t, ok)
	assert.Equal(t, fp, out)
}

func TestSampleProducesEvenlySpacedWindows(t *testing.T) {
	fp := fpOfLength(10_000)
	out, ok := Sample(fp, 10_000)
	require.True(t, ok)

	p := Resolve(10_000)
	assert.Len(t, out, p.NumSegments*p.HashesPerSegment)

	// First window starts at 0, preserving original TRef values.
	assert.Equal(t, uint32(0), out[0].TRef)
	// Last window ends at the tail of fp.
	last := out[len(out)-1]
	assert.Equal(t, uint32(len(fp)-1), last.TRef)
}

func TestSampleNeverExceedsInputLength(t *testing.T) {
	fp := fpOfLength(12_000)
	out, ok := Sample(fp, 10_000)
	require.True(t, ok)
	for _, h := range out {
		assert.Less(t, int(h.TRef), len(fp))
	}
}
