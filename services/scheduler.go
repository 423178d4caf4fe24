// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartExpirySweep schedules the periodic trial-expiry sweep. Until the
// sweep runs, stored trial statuses may lag their end dates; every read path
// recomputes activity independently, so the cadence is an operational knob,
// not a correctness one.
func (s *TrialService) StartExpirySweep(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.AutoExpireTrials(ctx, time.Now().UTC()); err != nil {
				log.Printf("[Scheduler] trial sweep failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
