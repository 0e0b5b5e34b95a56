// Package blobstore is the adapter for fetching a previously-uploaded
// audio blob by reference. The engine only ever depends on the Fetcher
// interface declared here; swapping the backing object store is a
// single-adapter change, never a change to the pipeline.
package blobstore

import "context"

// Fetcher retrieves the raw bytes of a blob identified by ref (an
// object key, URI, or any opaque string the configured backend
// understands).
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
