// Command sonicgend is the fingerprinting engine's worker daemon: it
// claims unclaimed Sources, runs them through the Spectral Front-End,
// Landmark Extractor, Segment Sampler and Candidate Search, and resolves
// each to a terminal status, until the process receives a shutdown
// signal.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonicgen/sonicgen/internal/blobstore"
	"github.com/sonicgen/sonicgen/internal/config"
	"github.com/sonicgen/sonicgen/internal/ingest"
	"github.com/sonicgen/sonicgen/internal/lease"
	"github.com/sonicgen/sonicgen/internal/metrics"
	"github.com/sonicgen/sonicgen/internal/store"
	"github.com/sonicgen/sonicgen/internal/worker"
	"github.com/sonicgen/sonicgen/pkg/logger"
)

var (
	envFile    string
	dsn        string
	workers    int
	blobDir    string
	s3Bucket   string
	s3Region   string
	idlePoll   time.Duration
)

func init() {
	flag.StringVar(&envFile, "env", ".env", "path to a .env overlay (optional)")
	flag.StringVar(&dsn, "dsn", "", "database DSN (sqlite file path, or postgres://... for Postgres)")
	flag.IntVar(&workers, "workers", 0, "worker goroutine count (0 = config default)")
	flag.StringVar(&blobDir, "blob-dir", "", "local directory to fetch Source audio blobs from")
	flag.StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket to fetch Source audio blobs from (overrides -blob-dir)")
	flag.StringVar(&s3Region, "s3-region", "us-east-1", "AWS region for -s3-bucket")
	flag.DurationVar(&idlePoll, "idle-poll", 2*time.Second, "how long a worker sleeps after finding an empty claim queue")
}

func main() {
	flag.Parse()
	log := logger.GetLogger()
	defer log.Sync()

	if err := config.LoadEnv(envFile); err != nil {
		log.Fatalf("loading env overlay: %v", err)
	}
	cfg := config.Default()
	if err := config.FromEnv(cfg); err != nil {
		log.Fatalf("applying env overrides: %v", err)
	}
	if dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("opening store at %s: %v", cfg.DatabaseDSN, err)
	}
	defer st.Close()

	fetcher, err := openFetcher(ctx)
	if err != nil {
		log.Fatalf("configuring blob fetcher: %v", err)
	}

	metrics.Initialize()
	go serveMetrics(cfg.MetricsListen, log)

	// leases is nil (disabling cross-process lease guarding) unless an
	// operator configured a Redis instance; a single-process deployment
	// has no use for it, since the Store's own atomic claim transition
	// already makes claims exclusive within one process.
	var leases *lease.Leases
	if cfg.RedisAddr != "" {
		leases = lease.New(cfg.RedisAddr, "sonicgen:lease:")
		defer leases.Close()
	}

	manager := ingest.New(st, cfg)
	dispatcher := worker.New(manager, st, fetcher, cfg, log, leases)

	log.Infof("starting %d workers against %s", cfg.Workers, cfg.DatabaseDSN)
	dispatcher.Run(ctx, cfg.Workers, idlePoll)

	// main does not wait for the worker goroutines: once the signal
	// arrives it returns, and Sources still in flight are abandoned
	// mid-pipeline rather than drained.
	<-ctx.Done()
	log.Infof("shutdown signal received, exiting")
}

// openStore dispatches to the Postgres or SQLite backend based on dsn's
// scheme, mirroring the teacher's own convention of keying backend
// selection off the connection string rather than a separate flag.
func openStore(ctx context.Context, dsn string) (store.Store, error) {
	if isPostgresDSN(dsn) {
		return store.OpenPostgres(ctx, dsn)
	}
	return store.OpenSQLite(dsn)
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func openFetcher(ctx context.Context) (blobstore.Fetcher, error) {
	if s3Bucket != "" {
		return blobstore.NewS3Fetcher(ctx, s3Region, s3Bucket)
	}
	dir := blobDir
	if dir == "" {
		dir = "."
	}
	return blobstore.NewLocalFetcher(dir), nil
}

func serveMetrics(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Errorf("metrics listener on %s failed: %v", addr, err)
	}
}
