package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound sentinel
var ErrNotFound = errors.New("not found")

// ErrSkipWrite may be returned by an UpdateFunc to leave the key untouched.
var ErrSkipWrite = errors.New("skip write")

// Store is a string-keyed, string-valued store with per-key TTL.
// Single-key operations are atomic; nothing spans keys.
type Store interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Put writes value; ttl <= 0 means no expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// UpdateFunc computes the next value of a key from its current one.
type UpdateFunc func(current string, found bool) (string, error)

// Inserter is implemented by stores with an exclusive-create primitive.
type Inserter interface {
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Updater is implemented by stores that can run a read-modify-write
// on one key without losing concurrent updates.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// PutIfAbsent writes value only if key does not exist and reports whether it
// did. Stores without Inserter get a Get followed by a Put; two racing
// callers can both succeed there and the last write wins.
func PutIfAbsent(ctx context.Context, s Store, key, value string, ttl time.Duration) (bool, error) {
	if ins, ok := s.(Inserter); ok {
		return ins.PutIfAbsent(ctx, key, value, ttl)
	}
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}
	if err := s.Put(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Update applies fn to key. Stores without Updater get a plain
// read-modify-write, so concurrent updates of one key may be lost.
// Expiry of an existing key is not preserved on that path.
func Update(ctx context.Context, s Store, key string, fn UpdateFunc) error {
	if u, ok := s.(Updater); ok {
		return u.Update(ctx, key, fn)
	}
	cur, err := s.Get(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	next, err := fn(cur, found)
	if errors.Is(err, ErrSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.Put(ctx, key, next, 0)
}
