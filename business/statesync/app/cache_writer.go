package app

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/poolsync/internal/logger"
)

// WriteRequest is one snapshot write-back.
type WriteRequest struct {
	Bucket      string
	Key         string
	BlockNumber uint64
	encode      func() ([]byte, error)
}

// WriteAttempt reports the outcome of a write-back to observers.
type WriteAttempt struct {
	Bucket      string
	Key         string
	BlockNumber uint64
	Err         error
	Dropped     bool
}

// CacheWriterConfig holds the write-back worker settings.
type CacheWriterConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// DefaultCacheWriterConfig returns sensible defaults.
func DefaultCacheWriterConfig() CacheWriterConfig {
	return CacheWriterConfig{
		QueueSize:    1024,
		Workers:      2,
		WriteTimeout: 5 * time.Second,
	}
}

// CacheWriter drains snapshot write-backs to the shared cache off the caller's
// path. Enqueue never blocks; a full queue drops the write.
type CacheWriter struct {
	config   CacheWriterConfig
	cache    SharedCache
	logger   logger.LoggerInterface
	metrics  *Metrics
	observer func(WriteAttempt)

	queue  chan WriteRequest
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// CacheWriterOption configures a CacheWriter.
type CacheWriterOption func(*CacheWriter)

// WithWriteObserver registers fn to be called after every attempted or dropped write.
func WithWriteObserver(fn func(WriteAttempt)) CacheWriterOption {
	return func(w *CacheWriter) {
		w.observer = fn
	}
}

// NewCacheWriter creates a writer. Call Start to run its workers.
func NewCacheWriter(cfg CacheWriterConfig, cache SharedCache, log logger.LoggerInterface, m *Metrics, opts ...CacheWriterOption) *CacheWriter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultCacheWriterConfig().QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	w := &CacheWriter{
		config:  cfg,
		cache:   cache,
		logger:  log,
		metrics: m,
		queue:   make(chan WriteRequest, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the workers. They exit when Close is called and the queue drains.
func (w *CacheWriter) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Enqueue schedules req. It reports false when the write was dropped.
func (w *CacheWriter) Enqueue(ctx context.Context, req WriteRequest) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.notify(WriteAttempt{Bucket: req.Bucket, Key: req.Key, BlockNumber: req.BlockNumber, Dropped: true})
		return false
	}

	select {
	case w.queue <- req:
		return true
	default:
		w.metrics.cacheDropped.Add(ctx, 1)
		w.logger.Warn(ctx, "snapshot write-back dropped, queue full",
			"bucket", req.Bucket, "key", req.Key, "block", req.BlockNumber)
		w.notify(WriteAttempt{Bucket: req.Bucket, Key: req.Key, BlockNumber: req.BlockNumber, Dropped: true})
		return false
	}
}

// Close stops accepting writes and waits for queued ones to finish.
func (w *CacheWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *CacheWriter) run(ctx context.Context) {
	defer w.wg.Done()
	for req := range w.queue {
		w.write(ctx, req)
	}
}

func (w *CacheWriter) write(ctx context.Context, req WriteRequest) {
	attempt := WriteAttempt{Bucket: req.Bucket, Key: req.Key, BlockNumber: req.BlockNumber}
	defer func() { w.notify(attempt) }()

	w.metrics.cacheWrites.Add(ctx, 1)

	data, err := req.encode()
	if err != nil {
		attempt.Err = err
		w.metrics.cacheWriteErrors.Add(ctx, 1)
		w.logger.Error(ctx, "snapshot encode failed", "bucket", req.Bucket, "key", req.Key, "error", err)
		return
	}

	writeCtx := ctx
	if w.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, w.config.WriteTimeout)
		defer cancel()
	}

	if err := w.cache.HashSet(writeCtx, req.Bucket, req.Key, data); err != nil {
		attempt.Err = err
		w.metrics.cacheWriteErrors.Add(ctx, 1)
		w.logger.Error(ctx, "snapshot write-back failed",
			"bucket", req.Bucket, "key", req.Key, "block", req.BlockNumber, "error", err)
	}
}

func (w *CacheWriter) notify(a WriteAttempt) {
	if w.observer != nil {
		w.observer(a)
	}
}
