// Package storage abstracts where batch artifacts and the price cache
// live: a local directory by default, an S3 bucket when runs share state.
package storage

import "context"

// BlobStore is the persistence contract for caches and report artifacts.
// Get returns an error satisfying errors.Is(err, fs.ErrNotExist) when the
// key is absent.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
