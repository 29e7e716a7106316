package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDeletions struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakeDeletions) RequestDeletion(context.Context, uuid.UUID, string) error { return nil }
func (f *fakeDeletions) CancelDeletion(context.Context, string) error             { return nil }
func (f *fakeDeletions) CancelDeletionForUser(context.Context, uuid.UUID) error   { return nil }

func (f *fakeDeletions) PurgeDeletions(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 1, f.err
}

func (f *fakeDeletions) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestAccountPurgeUsesGracePeriod(t *testing.T) {
	store := &fakeDeletions{}
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())

	p := &AccountPurge{
		Store:       store,
		GracePeriod: 15 * 24 * time.Hour,
		Interval:    10 * time.Millisecond,
		Logger:      zaptest.NewLogger(t),
		Now:         func() time.Time { return now },
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return store.calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Equal(t, now.Add(-15*24*time.Hour), store.cutoffs[0])
}

func TestAccountPurgeStoreError(t *testing.T) {
	boom := errors.New("db gone")
	p := &AccountPurge{Store: &fakeDeletions{err: boom}, Interval: time.Hour}
	require.ErrorIs(t, p.Run(context.Background()), boom)
}

func TestAccountPurgeRejectsZeroInterval(t *testing.T) {
	p := &AccountPurge{Store: &fakeDeletions{}}
	require.Error(t, p.Run(context.Background()))
}
