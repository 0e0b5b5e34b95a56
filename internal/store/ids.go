package store

import "github.com/google/uuid"

// newSourceID mints an opaque Source identifier. The engine never
// derives identity from title/artist the way the teacher's Song table
// does — externalID is the only natural key, so a random v4 UUID is the
// primary key.
func newSourceID() string {
	return uuid.NewString()
}
