// Package poller runs a task on a fixed interval until it reports done.
package poller

import (
	"context"
	"time"
)

// Task is one polling step. It returns true when polling should stop.
type Task func(ctx context.Context) (done bool)

// Poller calls a Task immediately and then once per interval.
type Poller struct {
	interval time.Duration
	task     Task
}

// New creates a Poller. A non-positive interval defaults to one second.
func New(interval time.Duration, task Task) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{interval: interval, task: task}
}

// Run blocks until the task reports done (nil) or ctx ends (ctx.Err()).
func (p *Poller) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.task(ctx) {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.task(ctx) {
				return nil
			}
		}
	}
}
