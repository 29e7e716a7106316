package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/getkayan/accounts/internal/domain"
	"go.uber.org/zap"
)

// AccountPurge permanently deletes the accounts whose deletion request is
// older than GracePeriod, checking every Interval.
type AccountPurge struct {
	Store       domain.DeletionStorage
	GracePeriod time.Duration
	Interval    time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Run purges until ctx is done or the store fails.
func (p *AccountPurge) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return errors.New("tasks: account purge interval must be positive")
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	for {
		n, err := p.Store.PurgeDeletions(ctx, now().Add(-p.GracePeriod))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if n > 0 {
			log.Info("accounts purged", zap.Int("purged", n))
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
}
