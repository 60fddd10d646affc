package local

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", "value1", 0))
	v, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl_key", "val", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelAndExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 0)
	_ = c.HSet(ctx, "h", "f", "v")

	ok, _ := c.Exists(ctx, "h")
	assert.True(t, ok)

	require.NoError(t, c.Del(ctx, "k", "h"))
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
	ok, _ = c.Exists(ctx, "h")
	assert.False(t, ok)
}

func TestExpireAppliesToHashes(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.HSetAll(ctx, "bb", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, c.Expire(ctx, "bb", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	all, err := c.HGetAll(ctx, "bb")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.ErrorIs(t, c.Expire(ctx, "bb", time.Second), ErrNotFound)
}

func TestWrongType(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 0)
	assert.ErrorIs(t, c.HSet(ctx, "k", "f", "v"), ErrWrongType)
	_, err := c.LRange(ctx, "k", 0, -1)
	assert.ErrorIs(t, err, ErrWrongType)
}

// ---- Hash ----

func TestHash(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.HSet(ctx, "h", "a", "1"))
	require.NoError(t, c.HSetAll(ctx, "h", map[string]string{"b": "2", "c": "3"}))

	all, err := c.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, all)

	require.NoError(t, c.HDel(ctx, "h", "a", "b", "c"))
	ok, _ := c.Exists(ctx, "h")
	assert.False(t, ok, "empty hash is removed")
}

// ---- Set ----

func TestSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SAdd(ctx, "s", "x", "y", "x"))
	m, err := c.SMembers(ctx, "s")
	require.NoError(t, err)
	sort.Strings(m)
	assert.Equal(t, []string{"x", "y"}, m)

	require.NoError(t, c.SRem(ctx, "s", "x"))
	m, _ = c.SMembers(ctx, "s")
	assert.Equal(t, []string{"y"}, m)
}

// ---- List ----

func TestListPushRangeTrim(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.LPush(ctx, "l", "a", "b"))
	require.NoError(t, c.LPush(ctx, "l", "c"))

	all, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, all)

	require.NoError(t, c.LTrim(ctx, "l", 0, 1))
	all, _ = c.LRange(ctx, "l", 0, -1)
	assert.Equal(t, []string{"c", "b"}, all)

	last, _ := c.LRange(ctx, "l", -1, -1)
	assert.Equal(t, []string{"b"}, last)

	empty, _ := c.LRange(ctx, "l", 5, 10)
	assert.Empty(t, empty)
}

func TestGCRemovesExpired(t *testing.T) {
	c, err := NewCache(Config{GCInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()
	_ = c.Set(context.Background(), "k", "v", time.Millisecond)

	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.items) == 0
	}, time.Second, 5*time.Millisecond)
}
