package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterEnsureAvailable(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter("daily", 100)

	require.NoError(t, l.EnsureAvailable(ctx, "u1"))

	require.NoError(t, l.Consume(ctx, "u1", 60, 40))
	err := l.EnsureAvailable(ctx, "u1")
	var qe *QuotaExceeded
	require.Error(t, err)
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "daily", qe.LimiterName)
	assert.Equal(t, 0, qe.Available)
}

func TestMemoryLimiterAvailableDecreases(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter("daily", 100)

	avail, err := l.Available(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, avail)

	require.NoError(t, l.Consume(ctx, "u1", 10, 5))
	avail, err = l.Available(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 85, avail)
}

func TestMemoryLimiterIndependentUsers(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter("daily", 10)

	require.NoError(t, l.Consume(ctx, "u1", 10, 0))
	require.Error(t, l.EnsureAvailable(ctx, "u1"))
	require.NoError(t, l.EnsureAvailable(ctx, "u2"))
}

func TestEnsureAvailableAllShortCircuits(t *testing.T) {
	ctx := context.Background()
	ok := NewMemoryLimiter("ok", 100)
	exhausted := NewMemoryLimiter("exhausted", 0)

	err := EnsureAvailableAll(ctx, []Limiter{ok, exhausted}, "u1")
	var qe *QuotaExceeded
	require.Error(t, err)
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "exhausted", qe.LimiterName)
}

func TestConsumeAllConsumesEveryLimiter(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryLimiter("a", 100)
	b := NewMemoryLimiter("b", 100)

	errs := ConsumeAll(ctx, []Limiter{a, b}, "u1", 10, 0)
	assert.Empty(t, errs)

	availA, _ := a.Available(ctx, "u1")
	availB, _ := b.Available(ctx, "u1")
	assert.Equal(t, 90, availA)
	assert.Equal(t, 90, availB)
}
