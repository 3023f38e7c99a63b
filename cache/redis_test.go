package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/reachkit/cache"
)

func newRedisBackend(t *testing.T, cfg cache.RedisConfig) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewRedis(client, cfg), mr
}

func TestRedis_SetGet(t *testing.T) {
	r, _ := newRedisBackend(t, cache.RedisConfig{})
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, cache.NamespaceMX, "example.com", []byte(`{"x":1}`)))

	raw, ok, err := r.Get(ctx, cache.NamespaceMX, "example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"x":1}`, string(raw))

	_, ok, err = r.Get(ctx, cache.NamespaceMX, "missing.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_KeysCarryPrefixAndNamespace(t *testing.T) {
	r, mr := newRedisBackend(t, cache.RedisConfig{KeyPrefix: "verif"})
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, cache.NamespaceSMTPPort, "example.com", []byte("25")))

	assert.True(t, mr.Exists("verif:smtpPort:example.com"))
}

func TestRedis_TTL(t *testing.T) {
	r, mr := newRedisBackend(t, cache.RedisConfig{
		Policies: map[cache.Namespace]cache.Policy{
			cache.NamespaceSMTP: {TTL: time.Minute},
		},
	})
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, cache.NamespaceSMTP, "a@b.co", []byte("v")))

	_, ok, _ := r.Get(ctx, cache.NamespaceSMTP, "a@b.co")
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, _ = r.Get(ctx, cache.NamespaceSMTP, "a@b.co")
	assert.False(t, ok, "entry must miss after TTL")
}

func TestRedis_HasDeleteLenClear(t *testing.T) {
	r, _ := newRedisBackend(t, cache.RedisConfig{})
	ctx := context.Background()

	_ = r.Set(ctx, cache.NamespaceFree, "gmail.com", []byte("1"))
	_ = r.Set(ctx, cache.NamespaceFree, "yahoo.com", []byte("1"))
	_ = r.Set(ctx, cache.NamespaceDisposable, "mailinator.com", []byte("1"))

	ok, err := r.Has(ctx, cache.NamespaceFree, "gmail.com")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := r.Len(ctx, cache.NamespaceFree)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "Len counts only its own namespace")

	require.NoError(t, r.Delete(ctx, cache.NamespaceFree, "gmail.com"))
	ok, _ = r.Has(ctx, cache.NamespaceFree, "gmail.com")
	assert.False(t, ok)

	require.NoError(t, r.Clear(ctx, cache.NamespaceFree))
	n, _ = r.Len(ctx, cache.NamespaceFree)
	assert.Equal(t, 0, n)

	// Other namespaces untouched by Clear.
	ok, _ = r.Has(ctx, cache.NamespaceDisposable, "mailinator.com")
	assert.True(t, ok)
}

func TestRedis_ViewRoundTrip(t *testing.T) {
	r, _ := newRedisBackend(t, cache.RedisConfig{})
	ctx := context.Background()

	type verdict struct {
		Deliverable string `json:"deliverable"`
	}
	v := cache.NewView[verdict](r, cache.NamespaceSMTP, zerolog.Nop())

	v.Set(ctx, "user@example.com", verdict{Deliverable: "yes"})
	got, ok := v.Get(ctx, "user@example.com")
	assert.True(t, ok)
	assert.Equal(t, "yes", got.Deliverable)
}
