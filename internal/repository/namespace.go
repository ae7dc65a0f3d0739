package repository

import (
	"context"
	"time"
)

type namespaced struct {
	inner  Store
	prefix string
}

// Namespace returns a view of s whose keys are all prefixed with prefix.
// The view keeps the optional capabilities of s.
func Namespace(s Store, prefix string) Store {
	return &namespaced{inner: s, prefix: prefix}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return n.inner.Put(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *namespaced) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return PutIfAbsent(ctx, n.inner, n.prefix+key, value, ttl)
}

func (n *namespaced) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return Update(ctx, n.inner, n.prefix+key, fn)
}
