package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("not found")
	// ErrTxAborted is returned when an optimistic transaction lost its
	// watched key to a concurrent writer. None of the staged operations
	// were applied.
	ErrTxAborted = errors.New("transaction aborted")
	// ErrUnavailable wraps I/O failures against the backing store.
	ErrUnavailable = errors.New("store unavailable")
)

type Storage interface {
	Get(ctx context.Context, key string, val any) error
	Set(ctx context.Context, key string, val any, expiresIn time.Duration) error
	Save(ctx context.Context, key string, val any) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, expiresAt time.Time) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type Store[T any] interface {
	Storage() Storage
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, val T, expiresIn time.Duration) error
	Save(ctx context.Context, key string, val T) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, expiresAt time.Time) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}
