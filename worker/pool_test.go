package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestPool_RunsAllTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(4, 16, zap.NewNop())
	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(context.Background(), "count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	p.Wait()
	assert.Equal(t, int64(100), ran.Load())

	p.Shutdown()
}

func TestPool_FailingTaskDoesNotStopWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(1, 1, zap.NewNop())
	var ran atomic.Int64
	require.NoError(t, p.Submit(context.Background(), "fail", func(ctx context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, p.Submit(context.Background(), "ok", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}))
	p.Wait()
	assert.Equal(t, int64(1), ran.Load())

	p.Shutdown()
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(2, 0, zap.NewNop())
	p.Shutdown()
	p.Shutdown()

	err := p.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(1, 8, zap.NewNop())
	var ran atomic.Int64
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit(context.Background(), "drain", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	p.Shutdown()
	assert.Equal(t, int64(8), ran.Load())
}

func TestPool_TrySubmitDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(1, 1, zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.TrySubmit(context.Background(), "busy", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.TrySubmit(context.Background(), "queued", func(ctx context.Context) error { return nil }))

	err := p.TrySubmit(context.Background(), "dropped", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	p.Wait()
	p.Shutdown()

	err = p.TrySubmit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}
