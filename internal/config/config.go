// Package config collects every operator-tunable parameter named in the
// engine's external interface section, with sane defaults and functional
// options in the same Option-pattern style the rest of the engine uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the engine exposes. Zero-value Config is not
// valid; use New, which seeds defaults and then applies Options.
type Config struct {
	// Spectral Front-End
	SampleRate int // SR, Hz
	FFTSize    int // N_FFT, samples
	HopSize    int // HOP, samples

	// Landmark Extractor
	PeakFreqRadius int     // Δf, bins
	PeakTimeRadius int     // Δt, frames
	PeakPercentile float64 // magnitude floor percentile, 0-100
	FanDT          int     // max anchor->target frame distance
	FanDF          int     // max anchor->target bin distance
	FanOut         int     // max pairs emitted per anchor

	// Segment Sampler
	MinMatchable int // below this hash count, caller should not attempt a match

	// Ingest
	MinFingerprintCount int           // below this hash count, Source is too_short
	InsertChunk         int           // max rows per insert transaction
	PerSourceTimeout    time.Duration // cancellation budget per claimed Source

	// Candidate Search
	IgnoreFraction   float64 // stop-word fraction of the global index
	MinMatches       int     // minimum bucket count to survive the pre-filter
	MaxHitsPerHash   int     // per-query-hash Occurrence cap
	LimitCandidates  int     // max ranked sources returned
	DeltaTolerance   int     // ±frames merged during δ-smoothing
	MatchThreshold   float64 // fraction of |Q| required to report a match
	RetryMaxAttempts int     // bounded retry count for transient index errors
	RetryBaseDelay   time.Duration

	// Deployment
	Workers       int
	DatabaseDSN   string
	RedisAddr     string
	MetricsListen string
	LeaseTTL      time.Duration // distributed claim lease lifetime; RedisAddr == "" disables leasing
}

// Option mutates a Config during construction.
type Option func(*Config)

func WithSampleRate(hz int) Option      { return func(c *Config) { c.SampleRate = hz } }
func WithFFTSize(n int) Option          { return func(c *Config) { c.FFTSize = n } }
func WithHopSize(n int) Option          { return func(c *Config) { c.HopSize = n } }
func WithFanOut(n int) Option           { return func(c *Config) { c.FanOut = n } }
func WithMinMatchable(n int) Option     { return func(c *Config) { c.MinMatchable = n } }
func WithMinFingerprintCount(n int) Option {
	return func(c *Config) { c.MinFingerprintCount = n }
}
func WithInsertChunk(n int) Option           { return func(c *Config) { c.InsertChunk = n } }
func WithPerSourceTimeout(d time.Duration) Option {
	return func(c *Config) { c.PerSourceTimeout = d }
}
func WithIgnoreFraction(f float64) Option { return func(c *Config) { c.IgnoreFraction = f } }
func WithMinMatches(n int) Option         { return func(c *Config) { c.MinMatches = n } }
func WithMaxHitsPerHash(n int) Option     { return func(c *Config) { c.MaxHitsPerHash = n } }
func WithLimitCandidates(n int) Option    { return func(c *Config) { c.LimitCandidates = n } }
func WithDeltaTolerance(n int) Option     { return func(c *Config) { c.DeltaTolerance = n } }
func WithMatchThreshold(f float64) Option { return func(c *Config) { c.MatchThreshold = f } }
func WithWorkers(n int) Option            { return func(c *Config) { c.Workers = n } }
func WithDatabaseDSN(dsn string) Option   { return func(c *Config) { c.DatabaseDSN = dsn } }
func WithRedisAddr(addr string) Option    { return func(c *Config) { c.RedisAddr = addr } }
func WithLeaseTTL(d time.Duration) Option { return func(c *Config) { c.LeaseTTL = d } }

// Default returns a Config populated with every default named in the
// engine's external interfaces section.
func Default() *Config {
	return &Config{
		SampleRate:          22050,
		FFTSize:             2048,
		HopSize:             512,
		PeakFreqRadius:      20,
		PeakTimeRadius:      20,
		PeakPercentile:      75,
		FanDT:               200,
		FanDF:               100,
		FanOut:              10,
		MinMatchable:        10000,
		MinFingerprintCount: 1000,
		InsertChunk:         10000,
		PerSourceTimeout:    5 * time.Minute,
		IgnoreFraction:      0.01,
		MinMatches:          6,
		MaxHitsPerHash:      1000,
		LimitCandidates:     50,
		DeltaTolerance:      1,
		MatchThreshold:      0.10,
		RetryMaxAttempts:    5,
		RetryBaseDelay:      200 * time.Millisecond,
		Workers:             4,
		DatabaseDSN:         "sonicgen.sqlite3",
		MetricsListen:       ":9090",
		LeaseTTL:            30 * time.Second,
	}
}

// New builds a Config from defaults, then applies opts in order.
func New(opts ...Option) *Config {
	cfg := Default()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// LoadEnv applies a .env file (if present) on top of the process
// environment, in the same convention as this space's other services.
// Missing .env is not an error — only deployment overrides live there.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// FromEnv overlays deployment-facing fields from the process environment
// onto cfg: worker count, DSN, Redis address, metrics listen address,
// the per-source timeout and the lease TTL. DSP/search tunables are intentionally not
// environment-overridable —
// changing them mid-fleet would make existing hashes incomparable (see
// the Open Question on rehash semantics).
func FromEnv(cfg *Config) error {
	if v := os.Getenv("SONICGEN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing SONICGEN_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("SONICGEN_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("SONICGEN_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("SONICGEN_METRICS_LISTEN"); v != "" {
		cfg.MetricsListen = v
	}
	if v := os.Getenv("SONICGEN_PER_SOURCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SONICGEN_PER_SOURCE_TIMEOUT: %w", err)
		}
		cfg.PerSourceTimeout = d
	}
	if v := os.Getenv("SONICGEN_LEASE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SONICGEN_LEASE_TTL: %w", err)
		}
		cfg.LeaseTTL = d
	}
	return nil
}
