package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidSpec(t *testing.T) {
	assert.NoError(t, ValidSpec("@every 10m"))
	assert.NoError(t, ValidSpec("*/5 * * * *"))
	assert.Error(t, ValidSpec("every ten minutes"))
}

func TestScheduler_RunsAndStops(t *testing.T) {
	s := New(time.UTC, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	require.NoError(t, s.Add(ctx, "@every 1s", "sweep", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 }, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
