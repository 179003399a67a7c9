package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(1000)
	require.NoError(t, err)
	defer l.Close()

	_, ok, err := l.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Set(ctx, 7, 100, time.Minute))
	got, ok, err := l.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), got)

	require.NoError(t, l.Set(ctx, 7, 99, time.Minute))
	got, _, _ = l.Get(ctx, 7)
	assert.Equal(t, int64(99), got)

	require.NoError(t, l.Delete(ctx, 7))
	_, ok, _ = l.Get(ctx, 7)
	assert.False(t, ok)
}

func TestLocalExpiry(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(1000)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Set(ctx, 1, 42, 50*time.Millisecond))
	_, ok, _ := l.Get(ctx, 1)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := l.Get(ctx, 1)
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}
