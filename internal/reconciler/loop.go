package reconciler

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xnovu/notification-engine/internal/resilience"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

var tracer = otel.Tracer("notification-engine/reconciler")

// Loop drives the incremental reconciliation pass on a fixed interval. On
// start it seeds the watermark from getLastRuleUpdate() and performs one
// full pass (§4.2's "on process start... a full pass is performed").
type Loop struct {
	rec      *Reconciler
	interval time.Duration

	paused int32
	done   chan struct{}
}

// NewLoop returns a Loop ticking at interval.
func NewLoop(rec *Reconciler, interval time.Duration) *Loop {
	return &Loop{rec: rec, interval: interval, done: make(chan struct{})}
}

// Start seeds the watermark, runs an initial full pass, then ticks the
// incremental pass until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	watermark, err := l.rec.Repo.GetLastRuleUpdate(ctx, "")
	if err != nil {
		return err
	}
	l.rec.mu.Lock()
	l.rec.watermark = watermark
	l.rec.mu.Unlock()

	if _, err := l.rec.SyncAllRules(ctx, ""); err != nil {
		return err
	}

	go l.run(ctx)
	return nil
}

func (l *Loop) run(ctx context.Context) {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	// backoff bounds a CatalogUnavailable tick failure to full-jitter delay
	// capped at interval × 4 (§7), instead of hammering a downed DB on
	// every fixed tick.
	backoff := resilience.NewFullJitterBackoff(l.interval, l.interval*4)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-timer.C:
			if atomic.LoadInt32(&l.paused) == 1 {
				timer.Reset(l.interval)
				continue
			}
			if err := l.tick(ctx); err != nil && engineerrors.Is(err, engineerrors.ErrCodeCatalogUnavailable) {
				timer.Reset(backoff.NextDelay(failures))
				failures++
				continue
			}
			failures = 0
			backoff.Reset()
			timer.Reset(l.interval)
		}
	}
}

func (l *Loop) tick(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "reconciliation.tick")
	defer span.End()

	tickCtx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()

	l.rec.mu.Lock()
	since := l.rec.watermark
	l.rec.mu.Unlock()

	rules, err := l.rec.Repo.GetActiveCronRules(tickCtx, "")
	if err != nil {
		span.RecordError(err)
		l.rec.Log.Error().Err(err).Msg("reconciler loop: getActiveCronRules failed")
		return err
	}

	newest := since
	for _, rule := range rules {
		if !rule.UpdatedAt.After(since) {
			continue
		}
		if err := l.rec.SyncRule(tickCtx, rule); err != nil {
			l.rec.Log.Error().Err(err).Str("rule_id", rule.ID).Msg("reconciler loop: syncRule failed")
		}
		if rule.UpdatedAt.After(newest) {
			newest = rule.UpdatedAt
		}
	}

	l.rec.mu.Lock()
	l.rec.watermark = newest
	l.rec.lastTick = time.Now()
	l.rec.mu.Unlock()

	span.SetAttributes(
		attribute.Int("reconciler.rules_examined", len(rules)),
		attribute.String("reconciler.watermark", newest.String()),
	)
	return nil
}

// Pause suspends ticks without stopping the goroutine.
func (l *Loop) Pause() { atomic.StoreInt32(&l.paused, 1) }

// Resume reverses Pause.
func (l *Loop) Resume() { atomic.StoreInt32(&l.paused, 0) }

// Stop terminates the loop goroutine. Not idempotent: a second Stop on
// the same Loop closes an already-closed channel and panics, so callers
// must not call it twice — Engine Controller's shutdown() is the
// sole caller and calls it exactly once).
func (l *Loop) Stop() { close(l.done) }
