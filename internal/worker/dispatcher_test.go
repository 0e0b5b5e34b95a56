package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/sonicgen/sonicgen/internal/config"
	"github.com/sonicgen/sonicgen/internal/ingest"
	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/sonicgen/sonicgen/internal/store"
	"github.com/sonicgen/sonicgen/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher returns a canned byte slice (or an error) regardless of
// ref, standing in for blobstore.Fetcher in tests.
type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f.data, f.err
}

// buildMonoWAV hand-assembles a minimal 16-bit PCM mono WAV container
// carrying n silent samples plus a single full-scale impulse every
// period samples, so the decoded signal has structure for SFE/LE to
// find landmarks in without needing a real audio fixture on disk. A
// period that divides the 512-sample hop makes every STFT frame
// identical, and then no point is a strict local maximum in time.
func buildMonoWAV(sampleRate, n, period int) []byte {
	var buf bytes.Buffer
	dataSize := n * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < n; i++ {
		var sample int16
		if period > 0 && i%period == 0 {
			sample = 32000
		}
		binary.Write(&buf, binary.LittleEndian, sample)
	}
	return buf.Bytes()
}

func newTestDispatcher(t *testing.T, fetcher *fakeFetcher) (*Dispatcher, *store.SQLiteStore, *config.Config) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.PerSourceTimeout = 30 * time.Second
	cfg.MinFingerprintCount = 0
	cfg.MinMatchable = 1 << 30 // disable the search-routing branch for these tests

	mgr := ingest.New(s, cfg)
	log := logger.New(logger.Config{Level: logger.FATAL})
	return New(mgr, s, fetcher, cfg, log, nil), s, cfg
}

func TestProcessFlagsSourceOnDecodeFailure(t *testing.T) {
	d, s, _ := newTestDispatcher(t, &fakeFetcher{data: []byte("not a wav or mp3 file")})
	ctx := context.Background()

	src, err := s.RegisterSource(ctx, "bad", "Bad", 10_000)
	require.NoError(t, err)

	d.process(ctx, "w1", *src)

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFlagged, got.Status)
}

func TestProcessMarksTooShortBelowMinFingerprintCount(t *testing.T) {
	d, s, cfg := newTestDispatcher(t, nil)
	cfg.MinFingerprintCount = 1_000_000 // force the too-short branch
	d.fetcher = &fakeFetcher{data: buildMonoWAV(22050, 4096, 64)}
	ctx := context.Background()

	src, err := s.RegisterSource(ctx, "short", "Short", 1_000)
	require.NoError(t, err)

	d.process(ctx, "w1", *src)

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTooShort, got.Status)
}

func TestProcessIngestsAndMarksFingerprinted(t *testing.T) {
	d, s, _ := newTestDispatcher(t, &fakeFetcher{data: buildMonoWAV(22050, 200_000, 1237)})
	ctx := context.Background()

	src, err := s.RegisterSource(ctx, "good", "Good", 9_000)
	require.NoError(t, err)

	d.process(ctx, "w1", *src)

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFingerprinted, got.Status)

	n, err := s.FingerprintCount(ctx, src.ID)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

// TestProcessRoutesDuplicateThroughSearchToMatched exercises the
// search-then-store routing branch end to end: a first Source is
// fingerprinted as a new original, then a second Source carrying the
// same audio is routed through Candidate Search and resolved as a
// duplicate of the first, without ever being stored itself.
func TestProcessRoutesDuplicateThroughSearchToMatched(t *testing.T) {
	wav := buildMonoWAV(22050, 200_000, 1237)
	d, s, cfg := newTestDispatcher(t, &fakeFetcher{data: wav})
	cfg.MinMatchable = 5 // force both sources through the search path
	ctx := context.Background()

	original, err := s.RegisterSource(ctx, "original", "Original", 9_000)
	require.NoError(t, err)
	d.process(ctx, "w1", *original)

	got, err := s.GetSource(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFingerprinted, got.Status)

	duplicate, err := s.RegisterSource(ctx, "duplicate", "Duplicate", 9_000)
	require.NoError(t, err)
	d.process(ctx, "w1", *duplicate)

	got, err = s.GetSource(ctx, duplicate.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusMatched, got.Status)
	require.NotNil(t, got.OriginalRef)
	assert.Equal(t, original.ID, *got.OriginalRef)

	n, err := s.FingerprintCount(ctx, duplicate.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "a matched duplicate must not be stored as its own occurrences")
}
