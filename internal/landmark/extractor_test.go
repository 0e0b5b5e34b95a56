package landmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultFan() FanParams {
	return FanParams{MaxDT: 200, MaxDF: 100, FanOut: 10}
}

func TestPairRespectsBounds(t *testing.T) {
	peaks := []Peak{
		{T: 0, F: 50},
		{T: 5, F: 60},   // within bounds
		{T: 300, F: 60}, // dt too large
		{T: 6, F: 200},  // df too large
	}

	records := Pair(peaks, defaultFan())
	require.Len(t, records, 1)
	assert.Equal(t, Hash(50, 60, 5), records[0].Hash)
	assert.Equal(t, uint32(0), records[0].TRef)
}

func TestPairCapsFanOut(t *testing.T) {
	peaks := []Peak{{T: 0, F: 0}}
	for i := 1; i <= 20; i++ {
		peaks = append(peaks, Peak{T: i, F: i})
	}

	records := Pair(peaks, FanParams{MaxDT: 200, MaxDF: 100, FanOut: 10})
	assert.Len(t, records, 10)
}

func TestPairTranslationEquivariant(t *testing.T) {
	peaks := []Peak{{T: 10, F: 50}, {T: 15, F: 60}, {T: 30, F: 45}}
	shifted := []Peak{{T: 110, F: 50}, {T: 115, F: 60}, {T: 130, F: 45}}

	base := Pair(peaks, defaultFan())
	shiftedRecords := Pair(shifted, defaultFan())

	require.Equal(t, len(base), len(shiftedRecords))
	for i := range base {
		assert.Equal(t, base[i].Hash, shiftedRecords[i].Hash)
		assert.Equal(t, base[i].TRef+100, shiftedRecords[i].TRef)
	}
}

func TestPairEmptyPeaks(t *testing.T) {
	assert.Empty(t, Pair(nil, defaultFan()))
}
