package ingest

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/sonicgen/sonicgen/pkg/errors"
)

// classify tags store errors that look like connection resets or
// timeouts as KindTransient so withRetry knows to back off and try
// again instead of giving up immediately; anything else passes through
// unchanged (a divergence or constraint error is not worth retrying).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.New(pkgerrors.KindTransient, "", "index_rpc", err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "broken pipe", "connection refused", "i/o timeout", "too many connections"} {
		if strings.Contains(msg, marker) {
			return pkgerrors.New(pkgerrors.KindTransient, "", "index_rpc", err)
		}
	}
	return err
}
