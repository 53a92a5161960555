package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(size int) *Queue {
	return NewQueue(size, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQueue_RunsJobsInOrderOneAtATime(t *testing.T) {
	q := newTestQueue(8)
	q.Start()

	var (
		mu      sync.Mutex
		order   []string
		running int
		overlap bool
	)
	job := func(id string) Job {
		return Job{ID: id, Run: func(ctx context.Context) error {
			mu.Lock()
			running++
			if running > 1 {
				overlap = true
			}
			order = append(order, id)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}}
	}

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(job(id)))
	}
	require.NoError(t, q.Stop(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.False(t, overlap, "jobs must never overlap")
}

func TestQueue_Full(t *testing.T) {
	q := newTestQueue(1)
	// Not started: the single slot stays occupied.
	require.NoError(t, q.Submit(Job{ID: "1", Run: func(context.Context) error { return nil }}))
	assert.ErrorIs(t, q.Submit(Job{ID: "2", Run: func(context.Context) error { return nil }}), ErrQueueFull)
	assert.Equal(t, 1, q.Pending())
}

func TestQueue_SubmitAfterStop(t *testing.T) {
	q := newTestQueue(1)
	q.Start()
	require.NoError(t, q.Stop(context.Background()))

	err := q.Submit(Job{ID: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueStopped)

	// Stop is idempotent.
	assert.NoError(t, q.Stop(context.Background()))
}

func TestQueue_SurvivesFailingAndPanickingJobs(t *testing.T) {
	q := newTestQueue(4)
	q.Start()

	ran := make(chan string, 3)
	require.NoError(t, q.Submit(Job{ID: "err", Run: func(context.Context) error {
		ran <- "err"
		return errors.New("boom")
	}}))
	require.NoError(t, q.Submit(Job{ID: "panic", Run: func(context.Context) error {
		ran <- "panic"
		panic("boom")
	}}))
	require.NoError(t, q.Submit(Job{ID: "ok", Run: func(context.Context) error {
		ran <- "ok"
		return nil
	}}))
	require.NoError(t, q.Stop(context.Background()))

	close(ran)
	var got []string
	for id := range ran {
		got = append(got, id)
	}
	assert.Equal(t, []string{"err", "panic", "ok"}, got)
}

func TestQueue_StopDeadlineCancelsRunningJob(t *testing.T) {
	q := newTestQueue(2)
	q.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, q.Submit(Job{ID: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running job was not cancelled")
	}
}
