package syncagent

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/pos-agent/internal/messaging"
	"github.com/angelmondragon/pos-agent/pkg/enums"
)

// Run services trigger commands and the interval timer until ctx is canceled.
// Passes run off the receive loop, so a command arriving mid-pass meets the
// held lock and is skipped instead of waiting in the channel for its own pass.
// After a pass with failures the interval doubles, capped at MaxBackoff; a
// clean pass resets it. Run returns once in-flight passes have finished.
func (a *Agent) Run(ctx context.Context) error {
	var commands <-chan messaging.Command
	if a.commands != nil {
		commands = a.commands.Commands()
	}

	var passes sync.WaitGroup
	defer passes.Wait()

	var tick <-chan time.Time
	var timer *time.Timer
	wait := a.autoInterval
	if wait > 0 {
		timer = time.NewTimer(withJitter(wait))
		defer timer.Stop()
		tick = timer.C
	}
	nextWait := make(chan time.Duration, 1)

	a.logg.Info(ctx, "sync agent started")
	for {
		select {
		case <-ctx.Done():
			a.logg.Info(ctx, "sync agent stopped")
			return nil
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if cmd.Type != messaging.CommandTriggerSync {
				continue
			}
			trigger := cmd.Trigger
			if trigger == "" {
				trigger = enums.SyncTriggerNotification
			}
			passes.Add(1)
			go func() {
				defer passes.Done()
				_, _ = a.Trigger(ctx, trigger)
			}()
		case <-tick:
			// timer stays disarmed until this pass reports the next wait
			tick = nil
			passes.Add(1)
			go func(current time.Duration) {
				defer passes.Done()
				nextWait <- a.intervalPass(ctx, current)
			}(wait)
		case wait = <-nextWait:
			timer.Reset(withJitter(wait))
			tick = timer.C
		}
	}
}

// intervalPass runs an automatic pass when the queue has entries and returns
// the next wait.
func (a *Agent) intervalPass(ctx context.Context, current time.Duration) time.Duration {
	count, err := a.queue.Count(ctx)
	if err != nil {
		a.logg.Error(ctx, "failed to read pending count", err)
		return nextBackoff(current, a.autoInterval, a.maxBackoff)
	}
	if count == 0 {
		return a.autoInterval
	}
	result, err := a.Trigger(ctx, enums.SyncTriggerInterval)
	switch {
	case err != nil, result.Failed > 0:
		return nextBackoff(current, a.autoInterval, a.maxBackoff)
	case result.Skipped:
		return current
	default:
		return a.autoInterval
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
