package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerRespectsAdmissionSlots(t *testing.T) {
	t.Parallel()

	const slots = 3
	s := New(Config{MaxInFlight: slots, Workers: 10, QueueDepth: 50}, zap.NewNop())
	defer s.Close()

	var running, peak int32
	unit := func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	ctx := context.Background()
	var futures []*Future
	for i := 0; i < 30; i++ {
		f, err := s.Submit(ctx, fmt.Sprintf("unit-%d", i), unit)
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		require.NoError(t, f.Wait(ctx))
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(slots))
	assert.Positive(t, atomic.LoadInt32(&peak))
}

func TestSchedulerReleasesSlotAfterFailureAndPanic(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxInFlight: 1, Workers: 2, QueueDepth: 4}, zap.NewNop())
	defer s.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	failed, err := s.Submit(ctx, "fails", func(context.Context) error { return boom })
	require.NoError(t, err)
	panicked, err := s.Submit(ctx, "panics", func(context.Context) error { panic("bad unit") })
	require.NoError(t, err)
	ok, err := s.Submit(ctx, "ok", func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.ErrorIs(t, failed.Wait(ctx), boom)
	perr := panicked.Wait(ctx)
	require.Error(t, perr)
	assert.Contains(t, perr.Error(), "panicked")

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	assert.NoError(t, ok.Wait(waitCtx))
}

func TestSchedulerCloseDrainsQueuedUnits(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxInFlight: 2, Workers: 2, QueueDepth: 20}, zap.NewNop())
	ctx := context.Background()

	var done int32
	var futures []*Future
	for i := 0; i < 10; i++ {
		f, err := s.Submit(ctx, "unit", func(context.Context) error {
			atomic.AddInt32(&done, 1)
			return nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	s.Close()

	assert.Equal(t, int32(10), atomic.LoadInt32(&done))
	for _, f := range futures {
		select {
		case <-f.Done():
		default:
			t.Fatalf("future %s not resolved after Close", f.Name())
		}
	}

	_, err := s.Submit(ctx, "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSchedulerCanceledContextFailsUnit(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxInFlight: 1, Workers: 2, QueueDepth: 4}, zap.NewNop())
	defer s.Close()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	blocker, err := s.Submit(context.Background(), "blocker", func(context.Context) error {
		started.Done()
		<-release
		return nil
	})
	require.NoError(t, err)
	started.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	waiting, err := s.Submit(ctx, "waiting", func(context.Context) error { return nil })
	require.NoError(t, err)
	cancel()

	assert.ErrorIs(t, waiting.Wait(context.Background()), context.Canceled)
	close(release)
	assert.NoError(t, blocker.Wait(context.Background()))
}

func TestFutureWaitHonorsContext(t *testing.T) {
	t.Parallel()

	f := newFuture("never")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}
