package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Backend on a shared Redis instance, for deployments that want
// verdict reuse across processes. TTLs are enforced per key via EXPIRE;
// size-based eviction is delegated to the server's maxmemory policy
// (allkeys-lru pairs naturally with this backend).
type Redis struct {
	client   redis.UniversalClient
	prefix   string
	policies map[Namespace]Policy
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// KeyPrefix namespaces this verifier's keys inside a shared instance.
	// Default "reachkit".
	KeyPrefix string
	// Policies override per-namespace TTLs (MaxSize is ignored here).
	Policies map[Namespace]Policy
}

// NewRedis wraps an existing client. The caller keeps ownership of the
// client; Close on the backend closes it.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "reachkit"
	}
	return &Redis{
		client:   client,
		prefix:   prefix,
		policies: mergePolicies(cfg.Policies),
	}
}

func (r *Redis) key(ns Namespace, key string) string {
	return r.prefix + ":" + string(ns) + ":" + key
}

func (r *Redis) ttl(ns Namespace) time.Duration {
	return r.policies[ns].TTL
}

func (r *Redis) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, r.key(ns, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *Redis) Set(ctx context.Context, ns Namespace, key string, value []byte) error {
	return r.client.Set(ctx, r.key(ns, key), value, r.ttl(ns)).Err()
}

func (r *Redis) Has(ctx context.Context, ns Namespace, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(ns, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Delete(ctx context.Context, ns Namespace, key string) error {
	return r.client.Del(ctx, r.key(ns, key)).Err()
}

// Len scans the namespace's key range. Linear in namespace size; meant for
// tests and diagnostics, not hot paths.
func (r *Redis) Len(ctx context.Context, ns Namespace) (int, error) {
	var (
		cursor uint64
		count  int
	)
	match := r.key(ns, "*")
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (r *Redis) Clear(ctx context.Context, ns Namespace) error {
	var cursor uint64
	match := r.key(ns, "*")
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
