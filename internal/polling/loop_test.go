package polling

import (
	"context"
	"testing"
	"time"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/schedulestore"
)

func TestLoopsPauseSuppressesTicks(t *testing.T) {
	repo := catalog.NewFakeRepository()
	seedRecord(repo, "n1", catalog.StatusPending, nil)
	store := schedulestore.NewFakeStore()
	p := New(repo, store, testLogger(), 10, "tq", 0)
	loops := NewLoops(p, 5*time.Millisecond, time.Hour, time.Hour)

	loops.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	loops.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	loops.Stop()

	if repo.Notifications["n1"].NotificationStatus != catalog.StatusPending {
		t.Error("expected no ticks to run while paused")
	}
}

func TestLoopsResumeAllowsTicksAgain(t *testing.T) {
	repo := catalog.NewFakeRepository()
	seedRecord(repo, "n1", catalog.StatusPending, nil)
	store := schedulestore.NewFakeStore()
	p := New(repo, store, testLogger(), 10, "tq", 0)
	loops := NewLoops(p, 5*time.Millisecond, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	loops.Start(ctx)
	defer func() {
		cancel()
		loops.Stop()
	}()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if repo.Notifications["n1"].NotificationStatus == catalog.StatusProcessing {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expected the new-work loop to admit the record within the deadline")
}
