package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrSignedURLUnsupported is returned by stores that cannot mint URLs
// reachable by third parties.
var ErrSignedURLUnsupported = errors.New("signed urls not supported by store")

// ErrNotFound is returned by Open for a key that holds no object.
var ErrNotFound = errors.New("object not found")

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Put(ctx context.Context, storageKey, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
	SignedURL(ctx context.Context, storageKey string, ttl time.Duration) (string, error)
}
