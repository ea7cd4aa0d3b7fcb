package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type failingCache struct {
	*mockCache
	block chan struct{}
}

func (c *failingCache) HashSet(ctx context.Context, bucket, key string, value []byte) error {
	if c.block != nil {
		<-c.block
	}
	return errors.New("write failed")
}

func TestCacheWriter_ReportsFailures(t *testing.T) {
	ctx := context.Background()
	m, _ := NewMetrics()

	attempts := make(chan WriteAttempt, 1)
	w := NewCacheWriter(DefaultCacheWriterConfig(), &failingCache{mockCache: newMockCache()}, &mockLogger{}, m,
		WithWriteObserver(func(a WriteAttempt) { attempts <- a }))
	w.Start(ctx)
	defer w.Close()

	ok := w.Enqueue(ctx, WriteRequest{Bucket: "b", Key: "k", BlockNumber: 1, encode: func() ([]byte, error) {
		return []byte("{}"), nil
	}})
	if !ok {
		t.Fatal("expected enqueue to succeed")
	}

	select {
	case a := <-attempts:
		if a.Err == nil {
			t.Error("expected write error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected attempt")
	}
}

func TestCacheWriter_DropsWhenFull(t *testing.T) {
	ctx := context.Background()
	m, _ := NewMetrics()

	block := make(chan struct{})
	var mu sync.Mutex
	dropped := 0
	w := NewCacheWriter(CacheWriterConfig{QueueSize: 1, Workers: 1}, &failingCache{mockCache: newMockCache(), block: block}, &mockLogger{}, m,
		WithWriteObserver(func(a WriteAttempt) {
			if a.Dropped {
				mu.Lock()
				dropped++
				mu.Unlock()
			}
		}))
	w.Start(ctx)

	encode := func() ([]byte, error) { return nil, nil }
	results := make([]bool, 0, 4)
	for i := 0; i < 4; i++ {
		results = append(results, w.Enqueue(ctx, WriteRequest{Bucket: "b", Key: "k", BlockNumber: uint64(i + 1), encode: encode}))
		time.Sleep(10 * time.Millisecond)
	}

	close(block)
	w.Close()

	// One write in flight, one queued, the rest dropped.
	if results[0] != true || results[1] != true || results[2] != false || results[3] != false {
		t.Errorf("unexpected enqueue results %v", results)
	}
	mu.Lock()
	defer mu.Unlock()
	if dropped != 2 {
		t.Errorf("expected 2 drops, got %d", dropped)
	}
}

func TestCacheWriter_EnqueueAfterClose(t *testing.T) {
	m, _ := NewMetrics()
	w := NewCacheWriter(DefaultCacheWriterConfig(), newMockCache(), &mockLogger{}, m)
	w.Start(context.Background())
	w.Close()
	w.Close()

	if w.Enqueue(context.Background(), WriteRequest{encode: func() ([]byte, error) { return nil, nil }}) {
		t.Error("expected enqueue after close to be rejected")
	}
}
