package payment

import (
	"context"
	"time"

	"bittietasks-controlplane/pkg/taskname"
	queue "bittietasks-controlplane/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// reconcileAt is when the daily escrow sweep fires, UTC.
var reconcileAt = struct{ hour, minute int }{1, 30}

func nextRunTime(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), reconcileAt.hour, reconcileAt.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// RunReconcileScheduler enqueues the daily reconcile task.
func RunReconcileScheduler(lc fx.Lifecycle, enqueuer queue.Enqueuer) {
	stop := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				for {
					now := time.Now().UTC()
					next := nextRunTime(now)

					zap.L().Info("reconcile scheduled", zap.Time("next_run", next))

					select {
					case <-time.After(next.Sub(now)):
					case <-stop:
						return
					}

					if _, err := enqueuer.Enqueue(
						asynq.NewTask(taskname.ReconcileRun, nil),
						asynq.Queue("low"),
					); err != nil {
						zap.L().Error("failed to enqueue reconcile", zap.Error(err))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			return nil
		},
	})
}
