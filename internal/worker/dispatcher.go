// Package worker is the concurrency and resource model's
// thread-per-Source dispatcher: each worker goroutine runs claim -> fetch
// PCM -> SFE -> LE -> route (store as new original, or segment-sample,
// search and decide) in a loop, bounded by PER_SOURCE_TIMEOUT.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sonicgen/sonicgen/internal/audio"
	"github.com/sonicgen/sonicgen/internal/blobstore"
	"github.com/sonicgen/sonicgen/internal/config"
	"github.com/sonicgen/sonicgen/internal/ingest"
	"github.com/sonicgen/sonicgen/internal/landmark"
	"github.com/sonicgen/sonicgen/internal/lease"
	"github.com/sonicgen/sonicgen/internal/metrics"
	"github.com/sonicgen/sonicgen/internal/model"
	"github.com/sonicgen/sonicgen/internal/search"
	"github.com/sonicgen/sonicgen/internal/segment"
	"github.com/sonicgen/sonicgen/internal/sfe"
	"github.com/sonicgen/sonicgen/internal/store"
	pkgerrors "github.com/sonicgen/sonicgen/pkg/errors"
	"github.com/sonicgen/sonicgen/pkg/logger"
)

// Dispatcher runs one or more worker goroutines over a shared claim
// loop against manager and store.
type Dispatcher struct {
	manager *ingest.Manager
	store   store.Store
	fetcher blobstore.Fetcher
	cfg     *config.Config
	log     *logger.Logger
	leases  *lease.Leases // nil disables cross-process lease guarding
}

// New builds a Dispatcher. fetcher resolves a Source's ExternalID to
// its audio blob; the reference daemon wires this to blobstore.S3Fetcher
// or a local-file equivalent. leases may be nil, in which case claims
// are guarded only by the Store's own atomic unclaimed->pending
// transition — the right choice for a single-process deployment.
func New(manager *ingest.Manager, s store.Store, fetcher blobstore.Fetcher, cfg *config.Config, log *logger.Logger, leases *lease.Leases) *Dispatcher {
	return &Dispatcher{manager: manager, store: s, fetcher: fetcher, cfg: cfg, log: log, leases: leases}
}

// Run starts n worker goroutines, each looping claim->process until ctx
// is cancelled or a claim finds the queue empty, in which case that
// worker sleeps idlePoll before retrying.
func (d *Dispatcher) Run(ctx context.Context, n int, idlePoll time.Duration) {
	for i := 0; i < n; i++ {
		go d.runWorker(ctx, fmt.Sprintf("worker-%d", i), idlePoll)
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, workerID string, idlePoll time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := d.manager.ClaimNext(ctx, 1, store.Cursor{})
		if err != nil {
			d.log.Errorf("%s: claim_next failed: %v", workerID, err)
			time.Sleep(idlePoll)
			continue
		}
		if len(claimed) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		for _, src := range claimed {
			d.processLeased(ctx, workerID, src)
		}
	}
}

// processLeased wraps process with the distributed lease: when leases
// is configured, a reaper running against the same Redis instance can
// tell a crashed worker's claim apart from one still legitimately in
// flight (lease.Expired), which the DB-level claim transition alone
// cannot express since it has no notion of worker liveness. The lease
// is taken once for cfg.LeaseTTL and is not renewed while process runs,
// so a Source whose processing outlasts LeaseTTL reports as expired
// although it is still in flight. The Store's atomic unclaimed->pending
// transition is still what makes the claim itself exclusive; the lease
// only adds operator-facing visibility on top of it.
func (d *Dispatcher) processLeased(ctx context.Context, workerID string, src model.Source) {
	if d.leases == nil {
		d.process(ctx, workerID, src)
		return
	}

	if err := d.leases.Acquire(ctx, src.ID, workerID, d.cfg.LeaseTTL); err != nil {
		d.log.Warnf("%s: source %s: lease acquire failed, processing unleased: %v", workerID, src.ID, err)
		d.process(ctx, workerID, src)
		return
	}
	defer func() {
		if err := d.leases.Release(ctx, src.ID, workerID); err != nil {
			d.log.Warnf("%s: source %s: lease release failed: %v", workerID, src.ID, err)
		}
	}()

	d.process(ctx, workerID, src)
}

// process runs the full claim->fetch->SFE->LE->route pipeline for one
// Source, bounded by PerSourceTimeout. It never returns an error to the
// caller: every failure is resolved into a terminal Source status, per
// the error handling design's "flagged for that Source only" rule for
// unexpected pipeline exceptions.
func (d *Dispatcher) process(ctx context.Context, workerID string, src model.Source) {
	sctx, cancel := context.WithTimeout(ctx, d.cfg.PerSourceTimeout)
	defer cancel()

	m := metrics.Get()

	// A panic anywhere in the CPU stages below (SFE, LE, segment
	// sampling) must not take the whole worker goroutine down with it —
	// it resolves to a flagged Source, same as any other unexpected
	// pipeline error, and this worker goes on to claim the next Source.
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("%s: source %s: pipeline panic: %v", workerID, src.ID, r)
			d.flag(sctx, src.ID, pkgerrors.Newf(pkgerrors.KindPipeline, src.ID, "process", "panic: %v", r))
			m.SourcesFlagged.Inc()
		}
	}()

	pcm, err := d.fetchPCM(sctx, src)
	if err != nil {
		d.log.Warnf("%s: source %s decode failed: %v", workerID, src.ID, err)
		d.flag(sctx, src.ID, pkgerrors.New(pkgerrors.KindDecode, src.ID, "fetch_pcm", err))
		m.SourcesFlagged.Inc()
		return
	}

	spectrogram := sfe.Compute(pcm.Samples, d.cfg.FFTSize, d.cfg.HopSize, sfe.Hann(d.cfg.FFTSize))
	fp := landmark.Extract(spectrogram,
		landmark.PeakParams{FreqRadius: d.cfg.PeakFreqRadius, TimeRadius: d.cfg.PeakTimeRadius, Percentile: d.cfg.PeakPercentile},
		landmark.FanParams{MaxDT: d.cfg.FanDT, MaxDF: d.cfg.FanDF, FanOut: d.cfg.FanOut},
	)

	if len(fp) < d.cfg.MinFingerprintCount {
		if err := d.manager.SetStatus(sctx, src.ID, model.StatusTooShort, nil); err != nil {
			d.log.Errorf("%s: source %s: setting too_short failed: %v", workerID, src.ID, err)
		}
		m.SourcesTooShort.Inc()
		return
	}

	if len(fp) >= d.cfg.MinMatchable {
		if d.routeThroughSearch(sctx, workerID, src, fp, m) {
			return
		}
		// Falls through to a full store below when no match was found.
	}

	if err := d.manager.IngestFingerprints(sctx, src.ID, fp); err != nil {
		if errors.Is(err, ingest.ErrAlreadyIngested) {
			return
		}
		switch pkgerrors.KindOf(err) {
		case pkgerrors.KindTransient, pkgerrors.KindDivergence:
			// Retries exhausted or batch aborted: status is not advanced,
			// the Source stays pending.
			d.log.Errorf("%s: source %s: ingest aborted, leaving pending: %v", workerID, src.ID, err)
			return
		}
		d.log.Errorf("%s: source %s: ingest failed: %v", workerID, src.ID, err)
		d.flag(sctx, src.ID, pkgerrors.New(pkgerrors.KindPipeline, src.ID, "ingest_occurrences", err))
		m.SourcesFlagged.Inc()
		return
	}
	if err := d.manager.SetStatus(sctx, src.ID, model.StatusFingerprinted, nil); err != nil {
		d.log.Errorf("%s: source %s: setting fingerprinted failed: %v", workerID, src.ID, err)
	}
	m.IngestedOccurrences.Add(float64(len(fp)))
}

// routeThroughSearch segment-samples fp, runs Candidate Search, and if
// a match is found records src as a duplicate of the winning original.
// Returns true if the Source's lifecycle was resolved this way (no
// further storage needed).
func (d *Dispatcher) routeThroughSearch(ctx context.Context, workerID string, src model.Source, fp []model.QueryHash, m *metrics.Metrics) bool {
	sampled, ok := segment.Sample(fp, d.cfg.MinMatchable)
	if !ok {
		sampled = fp
	}

	decision, err := search.Match(ctx, d.store, sampled, d.cfg)
	if err != nil {
		d.log.Warnf("%s: source %s: candidate search failed, falling back to full store: %v", workerID, src.ID, err)
		return false
	}
	if !decision.Matched {
		return false
	}

	ref := decision.SourceID
	if err := d.manager.SetStatus(ctx, src.ID, model.StatusMatched, &ref); err != nil {
		d.log.Errorf("%s: source %s: setting matched failed: %v", workerID, src.ID, err)
		return false
	}
	m.SourcesMatched.Inc()
	return true
}

func (d *Dispatcher) flag(ctx context.Context, sourceID string, cause error) {
	if err := d.manager.SetStatus(ctx, sourceID, model.StatusFlagged, nil); err != nil {
		d.log.Errorf("source %s: setting flagged failed (cause: %v): %v", sourceID, cause, err)
	}
}

// fetchPCM resolves src's audio blob and decodes it to mono PCM. It
// tries WAV first and falls back to MP3, then resamples to
// cfg.SampleRate when the decoded rate differs.
func (d *Dispatcher) fetchPCM(ctx context.Context, src model.Source) (*audio.PCM, error) {
	raw, err := d.fetcher.Fetch(ctx, src.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("fetching blob: %w", err)
	}

	pcm, err := audio.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		if pcm, err = audio.DecodeMP3(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("decoding as wav or mp3: %w", err)
		}
	}
	if pcm.SampleRate > 0 && pcm.SampleRate != d.cfg.SampleRate {
		pcm.Samples = audio.Resample(pcm.Samples, pcm.SampleRate, d.cfg.SampleRate)
		pcm.SampleRate = d.cfg.SampleRate
	}
	return pcm, nil
}
