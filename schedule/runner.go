package schedule

import (
	"context"
	"time"
)

// Trigger reports the next time a cycle is due.
type Trigger interface {
	Next(after time.Time) time.Time
}

// Reasons passed to the cycle function.
const (
	ReasonStartup  = "startup"
	ReasonSchedule = "schedule"
)

// CycleFunc runs one update cycle to completion.
type CycleFunc func(ctx context.Context, reason string)

// Runner is the single control loop of the daemon.
type Runner struct {
	trigger  Trigger
	interval time.Duration
	cycle    CycleFunc
	requests chan string
	now      func() time.Time
}

// NewRunner returns a Runner that checks trigger every interval.
func NewRunner(trigger Trigger, interval time.Duration, cycle CycleFunc) *Runner {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Runner{
		trigger:  trigger,
		interval: interval,
		cycle:    cycle,
		requests: make(chan string, 1),
		now:      time.Now,
	}
}

// Request asks the loop to run an extra cycle as soon as the current one, if
// any, has finished. Requests arriving while one is already pending are
// coalesced; the return value reports whether this one was queued. Safe to
// call from any goroutine.
func (r *Runner) Request(reason string) bool {
	select {
	case r.requests <- reason:
		return true
	default:
		log.Debugf("cycle already pending, dropping request from %s", reason)
		return false
	}
}

// Run executes one cycle immediately, then polls until ctx is done. It always
// returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	r.cycle(ctx, ReasonStartup)

	next := r.trigger.Next(r.now())
	log.Infof("next scheduled update at %s", next.Format(time.RFC3339))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-r.requests:
			r.cycle(ctx, reason)
		case <-ticker.C:
			if r.now().Before(next) {
				continue
			}
			r.cycle(ctx, ReasonSchedule)
			next = r.trigger.Next(r.now())
			log.Infof("next scheduled update at %s", next.Format(time.RFC3339))
		}
	}
}
