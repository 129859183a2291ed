package migration

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) install(l *BandwidthLimiter) {
	l.now = func() time.Time { return c.now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.slept += d
		c.now = c.now.Add(d)

		return nil
	}
}

func TestNewBandwidthLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewBandwidthLimiter(0))
	assert.Nil(t, NewBandwidthLimiter(-5))
	assert.Equal(t, int64(10), NewBandwidthLimiter(10).Rate())
}

func TestWaitN_BurstThenThrottle(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	l := NewBandwidthLimiter(1000)
	clk.install(l)

	ctx := context.Background()

	require.NoError(t, l.WaitN(ctx, 1000))
	assert.Zero(t, clk.slept, "first second is burst")

	require.NoError(t, l.WaitN(ctx, 500))
	assert.Equal(t, 500*time.Millisecond, clk.slept)

	// Idle time refills the bucket up to one second.
	clk.now = clk.now.Add(10 * time.Second)
	clk.slept = 0

	require.NoError(t, l.WaitN(ctx, 1000))
	assert.Zero(t, clk.slept)

	require.NoError(t, l.WaitN(ctx, 0))
	assert.Zero(t, clk.slept)
}

func TestWaitN_ContextCancelled(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewBandwidthLimiter(10)
	clk.install(l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.WaitN(ctx, 100), context.Canceled)
}

func TestLimitedReader_CapsReadSize(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewBandwidthLimiter(4)
	clk.install(l)

	r := l.Reader(context.Background(), bytes.NewReader([]byte("0123456789")))

	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(rest))
	assert.Equal(t, 1500*time.Millisecond, clk.slept)
}

func TestWaitN_LargerThanBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewBandwidthLimiter(100)
	clk.install(l)

	require.NoError(t, l.WaitN(context.Background(), 350))
	assert.Equal(t, 2500*time.Millisecond, clk.slept)
}

func TestWaitN_CancelledAfterBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewBandwidthLimiter(100)
	clk.install(l)

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.WaitN(ctx, 100))

	cancel()
	assert.ErrorIs(t, l.WaitN(ctx, 50), context.Canceled)
}
