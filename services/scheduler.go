// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartGradingScheduler runs an unscoped grading run every interval. Overlapping runs
// are not started; a run still in progress pushes the next one back.
func (p *ResultsProcessor) StartGradingScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()

			summary, err := p.Run(runCtx, RunOptions{Trigger: TriggerScheduler})
			if err != nil {
				p.Log.Error("[SCHEDULER] scheduled grading run failed", "error", err)
				return
			}
			if summary.Processed > 0 || summary.Errored > 0 {
				p.Log.Info("✅ [SCHEDULER] scheduled grading run done",
					"run_id", summary.RunID,
					"processed", summary.Processed,
					"errored", summary.Errored,
				)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("grade-shows"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule grading job: %w", err)
	}

	sched.Start()
	p.Log.Info("[SCHEDULER] grading scheduler started", "interval", interval.String())
	return sched, nil
}
