package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RunsTasks(t *testing.T) {
	r := NewRunner(zerolog.Nop(), Options{Concurrency: 2})
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		r.Go(context.Background(), "count", func(context.Context) error {
			n.Add(1)
			return nil
		})
	}
	r.Wait()
	assert.Equal(t, int32(10), n.Load())
	assert.Len(t, r.Failures(), 0)
}

func TestRunner_ReportsFailures(t *testing.T) {
	r := NewRunner(zerolog.Nop(), Options{})
	boom := errors.New("boom")

	r.Go(context.Background(), "increment_download_count", func(context.Context) error { return boom })
	r.Wait()

	require.Len(t, r.Failures(), 1)
	f := <-r.Failures()
	assert.Equal(t, "increment_download_count", f.Name)
	assert.ErrorIs(t, f.Err, boom)
}

func TestRunner_RecoversPanics(t *testing.T) {
	r := NewRunner(zerolog.Nop(), Options{})
	r.Go(context.Background(), "panics", func(context.Context) error { panic("bad") })
	r.Wait()

	f := <-r.Failures()
	assert.Contains(t, f.Err.Error(), "task panicked: bad")
}

func TestRunner_DetachedFromCallerCancellation(t *testing.T) {
	r := NewRunner(zerolog.Nop(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	r.Go(ctx, "after_cancel", func(taskCtx context.Context) error {
		ran.Store(taskCtx.Err() == nil)
		return nil
	})
	r.Wait()
	assert.True(t, ran.Load())
}

func TestRunner_TaskTimeout(t *testing.T) {
	r := NewRunner(zerolog.Nop(), Options{Timeout: 10 * time.Millisecond})
	r.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r.Wait()

	f := <-r.Failures()
	assert.ErrorIs(t, f.Err, context.DeadlineExceeded)
}

func TestRunner_DropsFailuresWhenBufferFull(t *testing.T) {
	r := NewRunner(zerolog.Nop(), Options{FailureBuffer: 1})
	for i := 0; i < 3; i++ {
		r.Go(context.Background(), "fail", func(context.Context) error { return errors.New("x") })
	}
	r.Wait()
	assert.Len(t, r.Failures(), 1)
}
