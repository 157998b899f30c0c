// internal/poller/runner.go
package poller

import (
	"context"
	"time"

	"github.com/qw-energy/victron-poller/internal/logging"
)

// ZeroSignal is a zero-size “just-a-signal” type.
type ZeroSignal struct{}

// Zero is the canonical value to send on signal channels.
var Zero ZeroSignal

// Publisher receives the finished snapshot of each cycle. ok is false when
// the whole cycle failed.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap Snapshot, ok bool) error
}

// Runner drives the poller on a fixed period. Exactly one cycle runs at a
// time: ticks arriving while a cycle is in flight coalesce into at most one
// pending cycle, so a slow device stretches the period instead of stacking
// work.
type Runner struct {
	poller    *Poller
	publisher Publisher
	interval  time.Duration
	pollCh    chan ZeroSignal
}

func NewRunner(p *Poller, publisher Publisher, interval time.Duration) *Runner {
	return &Runner{
		poller:    p,
		publisher: publisher,
		interval:  interval,
		pollCh:    make(chan ZeroSignal, 1),
	}
}

// RunOnce executes a single cycle and publishes its snapshot. It returns
// ErrAllReadsFailed when nothing could be read, which the caller at startup
// treats as retryable rather than fatal.
func (r *Runner) RunOnce(ctx context.Context) error {
	res := r.poller.PollOnce(ctx)

	var cycleErr error
	if res.AllFailed() {
		cycleErr = ErrAllReadsFailed
	}
	if err := r.publisher.PublishSnapshot(ctx, res.Snapshot, cycleErr == nil); err != nil {
		logging.Warn("snapshot publish failed", "error", err)
	}
	return cycleErr
}

// Run blocks until ctx is canceled, executing cycles on the configured
// period. A Modbus call that never returns stalls the loop; the handler
// timeout bounds that in practice.
func (r *Runner) Run(ctx context.Context) {
	go func() {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case r.pollCh <- Zero: // send a signal; drop if one is queued
				default:
				}
			}
		}
	}()

	logging.Info("poll loop started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.poller.transport.Close()
			logging.Info("poll loop stopped")
			return
		case <-r.pollCh:
			if err := r.RunOnce(ctx); err != nil {
				logging.Warn("poll cycle failed", "error", err)
			}
		}
	}
}
