package schedule

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/outreach/internal/logger"
)

func TestScheduler_AddInvalidSpec(t *testing.T) {
	s := New(nil)

	_, err := s.Add("every day", "bad", func(context.Context) {})
	assert.Error(t, err)
}

func TestScheduler_AddReturnsNext(t *testing.T) {
	s := New(nil)

	next, err := s.Add("0 9 * * *", "daily", func(context.Context) {})

	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestScheduler_RunsJobsUntilCancelled(t *testing.T) {
	s := New(nil)
	var calls atomic.Int32
	var jobCtxDone atomic.Bool

	_, err := s.Add("@every 1s", "tick", func(ctx context.Context) {
		calls.Add(1)
		<-ctx.Done()
		jobCtxDone.Store(true)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.True(t, jobCtxDone.Load(), "running job must observe cancellation")
	assert.Equal(t, int32(1), calls.Load(), "overlapping ticks are skipped")
}

func TestScheduler_RunTwice(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.started
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, s.Run(context.Background()))
	cancel()
	require.NoError(t, <-done)
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewWithWriter(&buf, "json", "debug")
	require.NoError(t, err)

	cl := cronLogger{log: log}
	cl.Info("schedule", "entry", 1, "dangling")

	assert.Contains(t, buf.String(), `"msg":"cron: schedule"`)
	assert.Contains(t, buf.String(), `"entry":1`)
}
