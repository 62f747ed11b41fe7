package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper closes boards that have been idle for longer than ttl.
// *board.Registry satisfies it.
type Sweeper interface {
	Sweep(ttl time.Duration) int
}

// Pruner deletes records older than a cutoff. The action ledger and the
// query statistics store satisfy it.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// BoardSweepJob drops boards of visitors who have gone away.
func BoardSweepJob(s Sweeper, ttl, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "board-sweep",
		Interval: interval,
		Run: func(context.Context) error {
			if n := s.Sweep(ttl); n > 0 {
				logger.Info("swept idle boards", zap.Int("closed", n), zap.Duration("ttl", ttl))
			}
			return nil
		},
	}
}

// InboxPruner drops expired notifications. *actions.Service satisfies it.
type InboxPruner interface {
	PruneNotifications() int
}

// NotificationPruneJob clears expired notifications nobody collected.
func NotificationPruneJob(p InboxPruner, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "notification-prune",
		Interval: interval,
		Run: func(context.Context) error {
			if n := p.PruneNotifications(); n > 0 {
				logger.Debug("pruned expired notifications", zap.Int("dropped", n))
			}
			return nil
		},
	}
}

// RetentionJob deletes entries of p older than retention.
func RetentionJob(name string, p Pruner, retention, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := p.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("pruned old records",
					zap.String("job", name),
					zap.Int64("deleted", n),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}
