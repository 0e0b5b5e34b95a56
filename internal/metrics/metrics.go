// Package metrics exposes the operator-facing counters and gauges the
// design notes call out: claim latency, ingest throughput and HashStat
// contention are the dominant scaling signals for this engine, so they
// (not general HTTP/cache metrics the ambient stack elsewhere might
// carry) are what gets instrumented here.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the daemon registers.
type Metrics struct {
	ClaimDuration      prometheus.Histogram
	ClaimedTotal       prometheus.Counter
	IngestedOccurrences prometheus.Counter
	IngestChunkDuration prometheus.Histogram
	HashStatRetries    prometheus.Counter
	SourcesFlagged     prometheus.Counter
	SourcesMatched     prometheus.Counter
	SourcesTooShort    prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers the daemon's metrics exactly once,
// in the teacher pack's promauto + sync.Once singleton style.
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			ClaimDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "sonicgen_claim_duration_seconds",
				Help:    "Latency of claim_next index RPCs.",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			}),
			ClaimedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "sonicgen_claimed_sources_total",
				Help: "Total number of Sources transitioned unclaimed -> pending.",
			}),
			IngestedOccurrences: promauto.NewCounter(prometheus.CounterOpts{
				Name: "sonicgen_ingested_occurrences_total",
				Help: "Total number of fingerprint rows submitted by successful ingests, duplicates coalesced on insert included.",
			}),
			IngestChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "sonicgen_ingest_chunk_duration_seconds",
				Help:    "Latency of one insert_occurrences chunk, including HashStat maintenance.",
				Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 15},
			}),
			HashStatRetries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "sonicgen_hashstat_retries_total",
				Help: "Total number of index RPC retries after a transient error.",
			}),
			SourcesFlagged: promauto.NewCounter(prometheus.CounterOpts{
				Name: "sonicgen_sources_flagged_total",
				Help: "Total number of Sources terminally flagged due to an unexpected pipeline error.",
			}),
			SourcesMatched: promauto.NewCounter(prometheus.CounterOpts{
				Name: "sonicgen_sources_matched_total",
				Help: "Total number of query Sources that resolved to a match.",
			}),
			SourcesTooShort: promauto.NewCounter(prometheus.CounterOpts{
				Name: "sonicgen_sources_too_short_total",
				Help: "Total number of Sources marked too_short.",
			}),
		}
	})
	return instance
}

// Get returns the process-wide Metrics instance, initializing it on
// first use.
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
