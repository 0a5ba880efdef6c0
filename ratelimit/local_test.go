package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLocal_FourthRequestRejectedUntilWindowElapses(t *testing.T) {
	clk := newClock()
	l := NewLocal(3, 3*time.Hour).WithClock(clk.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should pass", i+1)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 3*time.Hour, d.RetryAfter)

	clk.Advance(3 * time.Hour)
	d, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLocal_NoRefillInsideWindow(t *testing.T) {
	clk := newClock()
	l := NewLocal(3, 3*time.Hour).WithClock(clk.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, _ := l.Allow(ctx, "k")
		require.True(t, d.Allowed)
	}

	for _, at := range []time.Duration{time.Hour, 2 * time.Hour, 2*time.Hour + 59*time.Minute, 3*time.Hour - time.Second} {
		clk.t = newClock().t.Add(at)
		d, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.False(t, d.Allowed, "t+%s should be rejected", at)
		assert.Equal(t, 3*time.Hour-at, d.RetryAfter)
	}
}

func TestLocal_SlotsFreeOneByOne(t *testing.T) {
	clk := newClock()
	l := NewLocal(2, time.Hour).WithClock(clk.Now)
	ctx := context.Background()

	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	clk.Advance(30 * time.Minute)
	d, _ = l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	assert.Equal(t, 30*time.Minute, d.ResetAfter)

	clk.Advance(30 * time.Minute)
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed, "first slot is free again")
	d, _ = l.Allow(ctx, "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)
}

func TestLocal_RejectionDoesNotSpendBudget(t *testing.T) {
	clk := newClock()
	l := NewLocal(1, time.Hour).WithClock(clk.Now)
	ctx := context.Background()

	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	for i := 0; i < 5; i++ {
		clk.Advance(time.Minute)
		d, _ = l.Allow(ctx, "k")
		require.False(t, d.Allowed)
	}

	clk.Advance(55 * time.Minute)
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestLocal_KeysAreIndependent(t *testing.T) {
	l := NewLocal(1, time.Hour).WithClock(newClock().Now)
	ctx := context.Background()

	a, _ := l.Allow(ctx, "a")
	b, _ := l.Allow(ctx, "b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)

	a, _ = l.Allow(ctx, "a")
	assert.False(t, a.Allowed)
}

func TestLocal_Sweep(t *testing.T) {
	clk := newClock()
	l := NewLocal(3, 3*time.Hour).WithClock(clk.Now)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	clk.Advance(time.Hour)
	_, _ = l.Allow(ctx, "b")
	require.Equal(t, 2, l.Len())

	assert.Equal(t, 0, l.Sweep())

	clk.Advance(2 * time.Hour)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	clk.Advance(time.Hour)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
}
