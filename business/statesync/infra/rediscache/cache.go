// Package rediscache implements the shared snapshot cache on Redis.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/poolsync/business/statesync/app"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/circuitbreaker"
	"github.com/fd1az/poolsync/internal/logger"
)

const tracerName = "rediscache"

var _ app.SharedCache = (*Cache)(nil)

var errNotReady = errors.New("value not yet available")

// Config holds Redis connection and polling settings.
type Config struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Deferred gets poll with exponential backoff between these bounds and
	// give up after DeferredMaxElapsed.
	DeferredInitialInterval time.Duration
	DeferredMaxInterval     time.Duration
	DeferredMaxElapsed      time.Duration
}

// DefaultConfig returns sensible defaults for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:                    "localhost:6379",
		DialTimeout:             5 * time.Second,
		ReadTimeout:             3 * time.Second,
		WriteTimeout:            3 * time.Second,
		DeferredInitialInterval: 500 * time.Millisecond,
		DeferredMaxInterval:     10 * time.Second,
		DeferredMaxElapsed:      2 * time.Minute,
	}
}

// Cache is a SharedCache backed by a Redis client.
type Cache struct {
	client *redis.Client
	config Config
	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]
	tracer trace.Tracer
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, log logger.LoggerInterface) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperror.New(apperror.CodeCacheConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(cfg.Addr))
	}

	return NewWithClient(client, cfg, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, cfg Config, log logger.LoggerInterface) *Cache {
	c := &Cache{
		client: client,
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("redis-cache")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn(context.Background(), "circuit breaker state changed",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	c.cb = circuitbreaker.New[[]byte](cbCfg)

	return c
}

// Client exposes the underlying client for health checks.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) key(k string) string {
	return c.config.KeyPrefix + k
}

// HashGet reads field key of hash bucket.
func (c *Cache) HashGet(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	ctx, span := c.tracer.Start(ctx, "redis.hget",
		trace.WithAttributes(attribute.String("bucket", bucket), attribute.String("key", key)))
	defer span.End()

	found := true
	data, err := c.cb.Execute(func() ([]byte, error) {
		v, err := c.client.HGet(ctx, c.key(bucket), key).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hget failed")
		return nil, false, wrap(apperror.CodeCacheReadFailed, err, bucket)
	}

	span.SetAttributes(attribute.Bool("hit", found))
	return data, found, nil
}

// HashSet writes field key of hash bucket.
func (c *Cache) HashSet(ctx context.Context, bucket, key string, value []byte) error {
	ctx, span := c.tracer.Start(ctx, "redis.hset",
		trace.WithAttributes(attribute.String("bucket", bucket), attribute.String("key", key)))
	defer span.End()

	_, err := c.cb.Execute(func() ([]byte, error) {
		return nil, c.client.HSet(ctx, c.key(bucket), key, value).Err()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hset failed")
		return wrap(apperror.CodeCacheWriteFailed, err, bucket)
	}
	return nil
}

// Get reads a plain string key.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	found := true
	data, err := c.cb.Execute(func() ([]byte, error) {
		v, err := c.client.Get(ctx, c.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		return "", false, wrap(apperror.CodeCacheReadFailed, err, key)
	}
	return string(data), found, nil
}

// Set writes a plain string key without expiry.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	_, err := c.cb.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, c.key(key), value, 0).Err()
	})
	if err != nil {
		return wrap(apperror.CodeCacheWriteFailed, err, key)
	}
	return nil
}

// Publish sends message on channel.
func (c *Cache) Publish(ctx context.Context, channel string, message []byte) error {
	_, err := c.cb.Execute(func() ([]byte, error) {
		return nil, c.client.Publish(ctx, c.key(channel), message).Err()
	})
	if err != nil {
		return wrap(apperror.CodeCachePublishFailed, err, channel)
	}
	return nil
}

// Subscribe streams messages published on channel until ctx is done.
func (c *Cache) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := c.client.Subscribe(ctx, c.key(channel))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, wrap(apperror.CodeCacheConnectionFailed, err, channel)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// ScheduleDeferredGet polls (bucket, key) in the background and calls fn once
// the value exists. fn is not called if polling gives up or ctx ends.
func (c *Cache) ScheduleDeferredGet(ctx context.Context, bucket, key string, fn func(value []byte)) {
	b := backoff.NewExponentialBackOff()
	if c.config.DeferredInitialInterval > 0 {
		b.InitialInterval = c.config.DeferredInitialInterval
	}
	if c.config.DeferredMaxInterval > 0 {
		b.MaxInterval = c.config.DeferredMaxInterval
	}
	maxElapsed := c.config.DeferredMaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = DefaultConfig().DeferredMaxElapsed
	}

	go func() {
		data, err := backoff.Retry(ctx, func() ([]byte, error) {
			v, found, err := c.HashGet(ctx, bucket, key)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, errNotReady
			}
			return v, nil
		},
			backoff.WithBackOff(b),
			backoff.WithMaxElapsedTime(maxElapsed),
		)
		if err != nil {
			c.logger.Debug(ctx, "deferred get gave up", "bucket", bucket, "key", key, "error", err)
			return
		}
		fn(data)
	}()
}

func wrap(code apperror.Code, err error, target string) error {
	return apperror.New(code, apperror.WithCause(err), apperror.WithContext(target))
}
