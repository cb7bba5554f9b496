package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "missing"))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))

	now = now.Add(59 * time.Minute)
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok, "entry should live until its TTL")

	now = now.Add(time.Minute)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok, "entry should expire at its TTL")
	assert.Zero(t, s.Len(), "expired entry is dropped on read")
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
	v[1] = 'y'

	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, []byte(k), 0))
	}

	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, s.Len())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%4))
			_ = s.Set(ctx, key, []byte{byte(i)}, time.Minute)
			_, _, _ = s.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, s.Len())
}
