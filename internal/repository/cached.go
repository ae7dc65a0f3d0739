package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore is a read-through LRU in front of another Store. Local writes
// invalidate the cached key; writes from other processes become visible once
// the entry's ttl runs out.
type CachedStore struct {
	inner Store
	lru   *expirable.LRU[string, string]

	// writes counts local writes; a fill that overlapped one is dropped.
	mu     sync.Mutex
	writes uint64
}

func Cached(s Store, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: s, lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *CachedStore) Get(ctx context.Context, key string) (string, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	c.mu.Lock()
	seen := c.writes
	c.mu.Unlock()

	v, err := c.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.writes == seen {
		c.lru.Add(key, v)
	}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedStore) invalidate(key string) {
	c.mu.Lock()
	c.lru.Remove(key)
	c.writes++
	c.mu.Unlock()
}

func (c *CachedStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	defer c.invalidate(key)
	return c.inner.Put(ctx, key, value, ttl)
}

func (c *CachedStore) Delete(ctx context.Context, key string) error {
	defer c.invalidate(key)
	return c.inner.Delete(ctx, key)
}

func (c *CachedStore) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	defer c.invalidate(key)
	return PutIfAbsent(ctx, c.inner, key, value, ttl)
}

func (c *CachedStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	defer c.invalidate(key)
	return Update(ctx, c.inner, key, fn)
}

// Len reports how many entries are cached.
func (c *CachedStore) Len() int {
	return c.lru.Len()
}
