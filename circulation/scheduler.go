package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SweepReport is the combined outcome of one scheduler run.
type SweepReport struct {
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Expired    int           `json:"expired"`
	Overdue    OverdueReport `json:"overdue"`
}

// Scheduler is what the periodic trigger calls. It owns no timer.
type Scheduler struct {
	svc *Service
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{svc: svc}
}

// RunOnce runs the expiry sweep and then the overdue-notice sweep. The second
// sweep runs even when the first fails.
func (sc *Scheduler) RunOnce(ctx context.Context) (SweepReport, error) {
	rep := SweepReport{StartedAt: sc.svc.clock.Now()}

	var errs []error
	n, err := sc.svc.ExpireStale(ctx)
	rep.Expired = n
	if err != nil {
		errs = append(errs, fmt.Errorf("expire stale: %w", err))
	}
	over, err := sc.svc.SweepOverdueNotifications(ctx)
	rep.Overdue = over
	if err != nil {
		errs = append(errs, fmt.Errorf("overdue notices: %w", err))
	}

	rep.FinishedAt = sc.svc.clock.Now()
	return rep, errors.Join(errs...)
}
