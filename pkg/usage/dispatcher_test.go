package usage_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/quotagate/pkg/usage"
)

type ctxKey struct{}

func TestDispatcher_DetachesFromCancellation(t *testing.T) {
	t.Parallel()

	d := usage.NewDispatcher()
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))

	got := make(chan string, 1)
	require.NoError(t, d.Go(ctx, "test", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		if ctx.Err() != nil {
			got <- "cancelled"
			return ctx.Err()
		}
		got <- ctx.Value(ctxKey{}).(string)
		return nil
	}))
	cancel()

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, "req-1", <-got)
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	d := usage.NewDispatcher(usage.WithConcurrency(2))

	var running, peak atomic.Int32
	for range 10 {
		require.NoError(t, d.Go(context.Background(), "test", func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}

	require.NoError(t, d.Close(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Zero(t, running.Load())
}

func TestDispatcher_Close(t *testing.T) {
	t.Parallel()

	t.Run("drains and rejects new tasks", func(t *testing.T) {
		t.Parallel()

		d := usage.NewDispatcher()
		var done atomic.Int32
		for range 5 {
			require.NoError(t, d.Go(context.Background(), "test", func(context.Context) error {
				time.Sleep(5 * time.Millisecond)
				done.Add(1)
				return errors.New("ignored")
			}))
		}

		require.NoError(t, d.Close(context.Background()))
		assert.Equal(t, int32(5), done.Load())

		err := d.Go(context.Background(), "late", func(context.Context) error { return nil })
		assert.ErrorIs(t, err, usage.ErrDispatcherClosed)
	})

	t.Run("honours shutdown deadline", func(t *testing.T) {
		t.Parallel()

		d := usage.NewDispatcher(usage.WithTaskTimeout(time.Second))
		require.NoError(t, d.Go(context.Background(), "slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	})

	t.Run("task timeout applies", func(t *testing.T) {
		t.Parallel()

		d := usage.NewDispatcher(usage.WithTaskTimeout(10 * time.Millisecond))
		result := make(chan error, 1)
		require.NoError(t, d.Go(context.Background(), "slow", func(ctx context.Context) error {
			<-ctx.Done()
			result <- ctx.Err()
			return ctx.Err()
		}))

		require.NoError(t, d.Close(context.Background()))
		assert.ErrorIs(t, <-result, context.DeadlineExceeded)
	})
}
