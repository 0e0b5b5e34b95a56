package ingest

import (
	"context"
	"time"

	"github.com/sonicgen/sonicgen/internal/metrics"
	pkgerrors "github.com/sonicgen/sonicgen/pkg/errors"
)

// withRetry runs fn up to maxAttempts times, doubling delay from base
// after each failure, but only for errors KindOf identifies as
// transient — anything else is returned immediately, since retrying a
// divergence or a decode failure would just repeat it.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	delay := base
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if pkgerrors.KindOf(err) != pkgerrors.KindTransient {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		metrics.Get().HashStatRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
