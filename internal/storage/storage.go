// Package storage declares the object store contract shared by the blob
// backends in its subpackages.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by Get when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a flat key/value blob store. Keys may contain '/'.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
