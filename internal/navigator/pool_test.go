package navigator

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"curatorscan/internal/crawl"
)

type fakeHandle struct {
	id     int
	closed atomic.Bool
}

func (f *fakeHandle) Navigate(context.Context, crawl.Target) (crawl.Page, error) {
	return crawl.Page{}, nil
}

func (f *fakeHandle) Close() error {
	f.closed.Store(true)
	return nil
}

func countingFactory() (*atomic.Int32, Factory) {
	var n atomic.Int32
	return &n, func(context.Context) (crawl.Handle, error) {
		return &fakeHandle{id: int(n.Add(1))}, nil
	}
}

func TestPoolCreatesHandlesLazily(t *testing.T) {
	t.Parallel()

	created, factory := countingFactory()
	pool, err := NewHandlePool(4, factory, zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, int32(0), created.Load())
	h, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), created.Load())
	pool.Release(h, true)
}

func TestPoolReusesHealthyHandles(t *testing.T) {
	t.Parallel()

	created, factory := countingFactory()
	pool, err := NewHandlePool(2, factory, zap.NewNop())
	require.NoError(t, err)

	h1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(h1, true)

	h2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, h1, h2)
	require.Equal(t, int32(1), created.Load())
	pool.Release(h2, true)
}

func TestPoolDiscardsUnhealthyHandles(t *testing.T) {
	t.Parallel()

	created, factory := countingFactory()
	pool, err := NewHandlePool(2, factory, zap.NewNop())
	require.NoError(t, err)

	h1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(h1, false)
	require.True(t, h1.(*fakeHandle).closed.Load())

	h2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, h1, h2)
	require.Equal(t, int32(2), created.Load())
	pool.Release(h2, true)
}

func TestPoolEnforcesCapacity(t *testing.T) {
	t.Parallel()

	_, factory := countingFactory()
	pool, err := NewHandlePool(2, factory, zap.NewNop())
	require.NoError(t, err)

	h1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan crawl.Handle, 1)
	go func() {
		h, err := pool.Acquire(context.Background())
		if err == nil {
			acquired <- h
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block at capacity 2")
	case <-time.After(100 * time.Millisecond):
	}

	pool.Release(h1, true)
	select {
	case h := <-acquired:
		pool.Release(h, true)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not proceed after a release")
	}
	pool.Release(h2, true)
}

func TestPoolAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	_, factory := countingFactory()
	pool, err := NewHandlePool(1, factory, zap.NewNop())
	require.NoError(t, err)

	h, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	pool.Release(h, true)
}

func TestPoolFactoryErrorFreesSlot(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	factory := func(context.Context) (crawl.Handle, error) {
		if fail.Load() {
			return nil, errors.New("chrome refused to start")
		}
		return &fakeHandle{}, nil
	}
	pool, err := NewHandlePool(1, factory, zap.NewNop())
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	require.Error(t, err)

	fail.Store(false)
	h, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(h, true)
}

func TestPoolCloseWaitsForLeasedHandles(t *testing.T) {
	t.Parallel()

	_, factory := countingFactory()
	pool, err := NewHandlePool(2, factory, zap.NewNop())
	require.NoError(t, err)

	h1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(h2, true)

	closed := make(chan error, 1)
	go func() {
		closed <- pool.Close(context.Background())
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a handle was still leased")
	case <-time.After(100 * time.Millisecond):
	}

	pool.Release(h1, true)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not finish after last release")
	}

	// The leased handle was checked in after close began, so it must have
	// been destroyed rather than recycled.
	require.True(t, h1.(*fakeHandle).closed.Load())
	require.True(t, h2.(*fakeHandle).closed.Load())

	_, err = pool.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolCloseTimesOutOnStuckLease(t *testing.T) {
	t.Parallel()

	_, factory := countingFactory()
	pool, err := NewHandlePool(1, factory, zap.NewNop())
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Close(ctx), context.DeadlineExceeded)
}

func TestStatusErrorMapping(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, statusError("u", http.StatusNotFound), crawl.ErrProfileNotFound)
	require.ErrorIs(t, statusError("u", http.StatusGone), crawl.ErrProfileNotFound)
	require.ErrorIs(t, statusError("u", http.StatusTooManyRequests), crawl.ErrRateLimited)

	err := statusError("u", http.StatusBadGateway)
	require.Error(t, err)
	require.Equal(t, crawl.FailureNavigationTransient, crawl.Classify(err))
	require.True(t, crawl.Retryable(err))

	require.NoError(t, statusError("u", http.StatusOK))
	require.NoError(t, statusError("u", http.StatusForbidden))
}
