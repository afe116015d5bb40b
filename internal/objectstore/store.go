// Package objectstore is the content-addressable key/value backing
// store the planner reads MediaIndex blobs from and the assembler reads
// sample byte ranges from. It is deliberately narrow: read a byte
// range, write a whole object.
package objectstore

import (
	"context"

	"github.com/splicevod/splicevod/internal/apperr"
)

// Store is the external object store contract: byte-range reads and
// whole-object writes, both with typed errors (notably a not-found
// kind, which the HTTP layer maps to 404, and a transient kind, mapped
// to 503).
type Store interface {
	// Read returns exactly length bytes starting at offset within
	// bucket/key. length < 0 means "read to end of object".
	Read(ctx context.Context, bucket, key string, offset, length int64) ([]byte, error)
	Write(ctx context.Context, bucket, key string, data []byte) error
}

// ReadAll reads a whole object, for callers (like the planner's
// metadata fetch) that have no byte-range to apply.
func ReadAll(ctx context.Context, s Store, bucket, key string) ([]byte, error) {
	return s.Read(ctx, bucket, key, 0, -1)
}

// MetadataReaderAdapter satisfies planner.MetadataReader by delegating
// to a Store's whole-object read.
type MetadataReaderAdapter struct {
	Store Store
}

func (a MetadataReaderAdapter) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	return ReadAll(ctx, a.Store, bucket, key)
}

// wrapNotFound is a helper backends use to normalize a missing-object
// condition to apperr.KindStoreNotFound.
func wrapNotFound(bucket, key string) error {
	return apperr.New(apperr.KindStoreNotFound, "object not found: "+bucket+"/"+key)
}
