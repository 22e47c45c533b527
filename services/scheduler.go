// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// LevelScheduler periodically re-resolves cached user levels so admin edits
// to the level table reach every user even if a recalculation was missed.
type LevelScheduler struct {
	sched gocron.Scheduler
	job   gocron.Job
}

func StartLevelScheduler(levels *LevelService, interval time.Duration, clock clockwork.Clock) (*LevelScheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}

	job, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := levels.RecalculateUserLevels(ctx); err != nil {
				levels.Log.WithError(err).Error("[Scheduler] level recalculation failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("recalculate-user-levels"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return &LevelScheduler{sched: sched, job: job}, nil
}

// RunNow triggers the recalculation outside its schedule.
func (l *LevelScheduler) RunNow() error {
	return l.job.RunNow()
}

func (l *LevelScheduler) Stop() error {
	return l.sched.Shutdown()
}
