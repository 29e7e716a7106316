package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSuperviseFirstFailureStopsOthers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	boom := errors.New("boom")

	stopped := make(chan struct{})
	err := Supervise(context.Background(), zap.New(core),
		Task{Name: "server", Run: func(ctx context.Context) error {
			err := blockUntilDone(ctx)
			close(stopped)
			return err
		}},
		Task{Name: "task1 (redis deletion: captcha)", Run: func(context.Context) error { return boom }},
	)

	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "task1 (redis deletion: captcha)")
	select {
	case <-stopped:
	default:
		t.Fatal("expected the other task to have stopped before Supervise returned")
	}

	entries := logs.FilterMessage("task1 (redis deletion: captcha) returned with error").All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.ErrorLevel, entries[0].Level)
}

func TestSuperviseCleanExit(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	err := Supervise(context.Background(), zap.New(core),
		Task{Name: "server", Run: func(context.Context) error { return nil }},
		Task{Name: "task2 (account purge)", Run: blockUntilDone},
	)

	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("server successfully returned").Len())
}

func TestSuperviseParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	err := Supervise(ctx, zap.NewNop(),
		Task{Name: "a", Run: blockUntilDone},
		Task{Name: "b", Run: blockUntilDone},
	)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSuperviseNoTasks(t *testing.T) {
	require.NoError(t, Supervise(context.Background(), zap.NewNop()))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	started := make(chan struct{})

	task := reg.Track(Task{Name: "reaper", Run: func(context.Context) error {
		close(started)
		<-release
		return errors.New("store down")
	}})

	require.NoError(t, reg.Check(context.Background()), "a task waiting to start is not reported as stopped")
	require.False(t, reg.Status()["reaper"].Running)

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()
	<-started
	require.NoError(t, reg.Check(context.Background()))
	require.True(t, reg.Status()["reaper"].Running)

	close(release)
	require.EqualError(t, <-done, "store down")

	err := reg.Check(context.Background())
	require.EqualError(t, err, "tasks not running: reaper")
	status := reg.Status()["reaper"]
	require.False(t, status.Running)
	require.EqualError(t, status.Err, "store down")
	require.False(t, status.ExitedAt.IsZero())
}
