// Package blob stores rendered credential images. Blobs are written outside
// any database transaction and are addressed by fresh random keys, so a blob
// orphaned by a lost issuance race is harmless garbage reclaimed by the
// retention TTL. The database row is the only authority for validity.
package blob

import "context"

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

// Store is the object-storage boundary used by the credential issuer.
// Implementations return sentinel.ErrNotFound for missing keys.
type Store interface {
	// Put writes data under key and returns the key. Keys are single-use;
	// nothing ever overwrites a live blob.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get returns the stored bytes and content type.
	Get(ctx context.Context, key string) ([]byte, string, error)
}
