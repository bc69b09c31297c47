package types

import (
	"context"
	"errors"
	"time"
)

// Cache is the provider-neutral cache interface.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
	Name() string
}

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = &cacheMissError{}

type cacheMissError struct{}

func (e *cacheMissError) Error() string {
	return "cache miss"
}

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	var miss *cacheMissError
	return errors.As(err, &miss)
}
