package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/pkg/platform/sentinel"
)

// DefaultRetention bounds how long a rendered image outlives the credential
// it belongs to. Credentials expire after five minutes; a day of retention
// covers clock skew and debugging without accumulating garbage.
const DefaultRetention = 24 * time.Hour

// RedisStore keeps blobs in Redis with a retention TTL. Rendered credential
// images are small PNGs with a lifetime of minutes, which makes a key-value
// store with expiry a better fit than durable object storage.
type RedisStore struct {
	client    redis.Cmdable
	retention time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRetention overrides the blob retention TTL.
func WithRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewRedis constructs a Redis-backed blob store.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, retention: DefaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dataKey(key string) string { return "blob:data:" + key }
func typeKey(key string) string { return "blob:type:" + key }

func (s *RedisStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey(key), data, s.retention)
	pipe.Set(ctx, typeKey(key), contentType, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("put blob %s: %w", key, err)
	}
	return key, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	data, err := s.client.Get(ctx, dataKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", sentinel.ErrNotFound
		}
		return nil, "", fmt.Errorf("get blob %s: %w", key, err)
	}
	contentType, err := s.client.Get(ctx, typeKey(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", fmt.Errorf("get blob content type %s: %w", key, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
