package storage

import (
	"context"
	"io"
)

// Provider is the object-store abstraction every backend implements.
// Originals, renditions and gallery archives all go through it.
type Provider interface {
	// SaveWithContext writes an object at the given key, overwriting any
	// previous object.
	SaveWithContext(ctx context.Context, key string, file io.Reader) error

	// GetWithContext opens the object at the given key for reading.
	GetWithContext(ctx context.Context, key string) (io.ReadSeeker, error)

	// DeleteWithContext removes the object at the given key.
	DeleteWithContext(ctx context.Context, key string) error

	// Exists reports whether an object is present at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// Health checks backend reachability.
	Health(ctx context.Context) error

	// Name returns the provider name.
	Name() string
}
