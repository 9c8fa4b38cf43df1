package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	kv, err := NewRedisKV("redis://" + s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv, s
}

func backends(t *testing.T) map[string]KV {
	redisKV, _ := setupTestRedis(t)
	return map[string]KV{
		"memory": NewMemoryKV(),
		"redis":  redisKV,
	}
}

func TestKVSetGetDelete(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(ctx, "k", []byte(`{"a":1}`)))
			value, ok, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"a":1}`, string(value))

			require.NoError(t, kv.Delete(ctx, "k"))
			_, ok, _ = kv.Get(ctx, "k")
			assert.False(t, ok, "expected key to be gone")
			assert.NoError(t, kv.Ping(ctx))
		})
	}
}

func TestKVKeysByPrefix(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"map:b", "map:a", "other:c"} {
				require.NoError(t, kv.Set(ctx, k, []byte("{}")))
			}
			keys, err := kv.Keys(ctx, "map:")
			require.NoError(t, err)
			assert.Equal(t, []string{"map:a", "map:b"}, keys)
		})
	}
}

func TestNewRedisKVRejectsBadURL(t *testing.T) {
	_, err := NewRedisKV("not-a-url")
	assert.Error(t, err)
}

func TestRedisKVSurvivesWithoutTTL(t *testing.T) {
	kv, s := setupTestRedis(t)
	require.NoError(t, kv.Set(context.Background(), "persist", []byte("{}")))
	assert.Zero(t, s.TTL("persist"))
}

func TestMemoryKVCopiesValues(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, kv.Set(ctx, "k", buf))
	buf[0] = 'x'
	value, _, _ := kv.Get(ctx, "k")
	assert.Equal(t, "abc", string(value), "stored value aliased the caller's buffer")
}
