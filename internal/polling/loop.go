package polling

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xnovu/notification-engine/internal/resilience"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

// tickFunc is one of Poller's Tick* methods: it returns the number of
// records the tick polled (for TickFailedRetry, the number it admitted),
// used to drive backpressure.
type tickFunc func(ctx context.Context) (int, error)

// Loops bundles the three cooperating polling loops (§4.3) into one
// controllable unit the Engine Controller starts/pauses/resumes/stops.
type Loops struct {
	p *Poller

	newWorkInterval      time.Duration
	failedRetryInterval  time.Duration
	dueScheduledInterval time.Duration

	paused int32
	done   chan struct{}
}

// NewLoops returns a Loops driving p at the given intervals.
func NewLoops(p *Poller, newWorkInterval, failedRetryInterval, dueScheduledInterval time.Duration) *Loops {
	return &Loops{
		p:                    p,
		newWorkInterval:      newWorkInterval,
		failedRetryInterval:  failedRetryInterval,
		dueScheduledInterval: dueScheduledInterval,
		done:                 make(chan struct{}),
	}
}

// Start launches the three loops as independent goroutines. Each runs at
// most one tick concurrently and never blocks the other two.
func (l *Loops) Start(ctx context.Context) {
	go l.drive(ctx, l.p.TickNewWork, l.newWorkInterval)
	go l.drive(ctx, l.p.TickFailedRetry, l.failedRetryInterval)
	go l.drive(ctx, l.p.TickDueScheduled, l.dueScheduledInterval)
}

func (l *Loops) drive(ctx context.Context, tick tickFunc, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	// backoff bounds a CatalogUnavailable tick failure to full-jitter delay
	// capped at interval × 4 (§7), instead of hammering a downed DB every
	// interval at full frequency.
	backoff := resilience.NewFullJitterBackoff(interval, interval*4)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-timer.C:
			if atomic.LoadInt32(&l.paused) == 1 {
				timer.Reset(interval)
				continue
			}
			n, err := tick(ctx)
			if err != nil {
				l.p.Log.Error().Err(err).Msg("polling loop: tick failed")
			}

			switch {
			case err != nil && engineerrors.Is(err, engineerrors.ErrCodeCatalogUnavailable):
				timer.Reset(backoff.NextDelay(failures))
				failures++
			case err == nil && n == l.p.BatchSize:
				failures = 0
				timer.Reset(0)
			default:
				failures = 0
				backoff.Reset()
				timer.Reset(interval)
			}
		}
	}
}

// Pause suspends all three loops without stopping their goroutines, for the
// Engine Controller's pause() control-plane call.
func (l *Loops) Pause() { atomic.StoreInt32(&l.paused, 1) }

// Resume reverses Pause.
func (l *Loops) Resume() { atomic.StoreInt32(&l.paused, 0) }

// Stop terminates all three loop goroutines. Call at most once.
func (l *Loops) Stop() { close(l.done) }
