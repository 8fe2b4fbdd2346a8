package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/schedulestore"
)

func TestLoopStartSeedsWatermarkAndRunsFullPass(t *testing.T) {
	repo := catalog.NewFakeRepository()
	seedActiveRule(repo, "r1", "t1")
	store := schedulestore.NewFakeStore()
	rec := New(repo, store, testLogger())
	loop := NewLoop(rec, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer loop.Stop()

	all, _ := store.ListSchedules(context.Background(), schedulestore.SchedulePrefix)
	if len(all) != 1 {
		t.Fatalf("expected the initial full pass to create 1 schedule, got %d", len(all))
	}
	if rec.LastTick().IsZero() {
		t.Error("expected LastTick to be set after the initial full pass")
	}
}

func TestLoopTickSyncsOnlyRulesNewerThanWatermark(t *testing.T) {
	repo := catalog.NewFakeRepository()
	rule := seedActiveRule(repo, "r1", "t1")
	rule.UpdatedAt = time.Now().Add(-time.Hour)
	store := schedulestore.NewFakeStore()
	rec := New(repo, store, testLogger())
	rec.watermark = time.Now()
	loop := NewLoop(rec, time.Millisecond)

	loop.tick(context.Background())

	if _, err := store.GetSchedule(context.Background(), rule.ScheduleID()); err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	all, _ := store.ListSchedules(context.Background(), schedulestore.SchedulePrefix)
	if len(all) != 0 {
		t.Errorf("expected a stale rule to be skipped by the incremental tick, got %d schedules", len(all))
	}
}

func TestLoopPauseResumeSuppressesTicks(t *testing.T) {
	repo := catalog.NewFakeRepository()
	store := schedulestore.NewFakeStore()
	rec := New(repo, store, testLogger())
	loop := NewLoop(rec, 5*time.Millisecond)

	loop.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	if !rec.LastTick().IsZero() {
		t.Error("expected no ticks to run while paused")
	}
}
