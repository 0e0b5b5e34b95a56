// Package errors wraps github.com/mdobak/go-xerrors so every error raised
// inside the pipeline carries a Kind from the disposition table in the
// engine's error handling design, recoverable without string matching.
package errors

import (
	"fmt"

	xerrors "github.com/mdobak/go-xerrors"
)

// Kind identifies one of the error dispositions a Source failure falls
// into. The dispatcher checks Kind on ingest failures: transient and
// divergence errors leave the Source pending, others flag it.
type Kind int

const (
	// KindUnknown is never produced by New; it is the zero value returned
	// by KindOf when an error was not constructed through this package.
	KindUnknown Kind = iota
	// KindDecode covers audio -> PCM decode failures. Disposition: flagged.
	KindDecode
	// KindTooShort covers fingerprint lists shorter than MinFingerprintCount.
	// Disposition: too_short, no persistence.
	KindTooShort
	// KindTransient covers index RPC timeouts and connection resets.
	// Disposition: bounded retry, then leave pending.
	KindTransient
	// KindDivergence covers a detected Occurrence/HashStat inconsistency.
	// Disposition: abort the batch, do not advance status.
	KindDivergence
	// KindPipeline covers any other unexpected exception in a CPU stage.
	// Disposition: flagged, worker continues with the next claim.
	KindPipeline
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindTooShort:
		return "too_short"
	case KindTransient:
		return "transient"
	case KindDivergence:
		return "divergence"
	case KindPipeline:
		return "pipeline"
	default:
		return "unknown"
	}
}

// sourceError pairs a Kind and the offending Source/stage with the
// wrapped cause, per the error handling design's "include the Source id
// and the offending stage" requirement.
type sourceError struct {
	kind     Kind
	sourceID string
	stage    string
	cause    error
}

func (e *sourceError) Error() string {
	return fmt.Sprintf("%s: source=%s stage=%s: %v", e.kind, e.sourceID, e.stage, e.cause)
}

func (e *sourceError) Unwrap() error { return e.cause }

// New builds a Kind-tagged error for sourceID failing at stage, wrapping
// cause with a stack trace via go-xerrors.
func New(kind Kind, sourceID, stage string, cause error) error {
	return &sourceError{
		kind:     kind,
		sourceID: sourceID,
		stage:    stage,
		cause:    xerrors.New(cause),
	}
}

// Newf is New with a formatted cause message.
func Newf(kind Kind, sourceID, stage, format string, args ...any) error {
	return New(kind, sourceID, stage, fmt.Errorf(format, args...))
}

// KindOf recovers the Kind a source error was constructed with, walking
// the unwrap chain. Returns KindUnknown for any error not built by New.
func KindOf(err error) Kind {
	var se *sourceError
	for err != nil {
		if s, ok := err.(*sourceError); ok {
			se = s
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if se == nil {
		return KindUnknown
	}
	return se.kind
}
