// Package memcache implements the shared snapshot cache in process memory. It
// serves single-process deployments and tests; replicas in other processes
// cannot see it.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/poolsync/business/statesync/app"
	"github.com/fd1az/poolsync/internal/cache"
)

var _ app.SharedCache = (*Cache)(nil)

type hashKey struct {
	bucket string
	key    string
}

// Cache is an in-memory SharedCache with channel-based pub/sub.
type Cache struct {
	hashes *cache.Cache[hashKey, []byte]
	values *cache.Cache[string, string]
	ttl    time.Duration

	mu      sync.Mutex
	subs    map[string][]chan []byte
	waiters map[hashKey][]func([]byte)
}

// New creates a cache. Entries expire after ttl; zero keeps them forever.
func New(ttl time.Duration) *Cache {
	cleanup := time.Duration(0)
	if ttl > 0 {
		cleanup = ttl
	}
	return &Cache{
		hashes:  cache.New[hashKey, []byte](cleanup),
		values:  cache.New[string, string](cleanup),
		ttl:     ttl,
		subs:    make(map[string][]chan []byte),
		waiters: make(map[hashKey][]func([]byte)),
	}
}

// Close stops the janitors.
func (c *Cache) Close() {
	c.hashes.Close()
	c.values.Close()
}

func (c *Cache) HashGet(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	v, ok := c.hashes.Get(ctx, hashKey{bucket, key})
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (c *Cache) HashSet(ctx context.Context, bucket, key string, value []byte) error {
	k := hashKey{bucket, key}
	stored := append([]byte(nil), value...)
	c.hashes.Set(ctx, k, stored, c.ttl)

	c.mu.Lock()
	waiters := c.waiters[k]
	delete(c.waiters, k)
	c.mu.Unlock()

	for _, fn := range waiters {
		go fn(append([]byte(nil), stored...))
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.values.Get(ctx, key)
	return v, ok, nil
}

func (c *Cache) Set(ctx context.Context, key, value string) error {
	c.values.Set(ctx, key, value, c.ttl)
	return nil
}

// Publish delivers message to current subscribers. Slow subscribers miss it.
func (c *Cache) Publish(ctx context.Context, channel string, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs[channel] {
		select {
		case ch <- append([]byte(nil), message...):
		default:
		}
	}
	return nil
}

// Subscribe returns a channel closed when ctx is done.
func (c *Cache) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)

	c.mu.Lock()
	c.subs[channel] = append(c.subs[channel], ch)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[channel]
		for i, s := range subs {
			if s == ch {
				c.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// ScheduleDeferredGet fires fn once (bucket, key) is written, or right away
// when a value already exists.
func (c *Cache) ScheduleDeferredGet(ctx context.Context, bucket, key string, fn func(value []byte)) {
	k := hashKey{bucket, key}

	c.mu.Lock()
	if v, ok := c.hashes.Get(ctx, k); ok {
		c.mu.Unlock()
		go fn(append([]byte(nil), v...))
		return
	}
	c.waiters[k] = append(c.waiters[k], fn)
	c.mu.Unlock()
}
