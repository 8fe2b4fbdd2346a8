package engine

import (
	"context"
	"testing"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/polling"
	"github.com/xnovu/notification-engine/internal/reconciler"
	"github.com/xnovu/notification-engine/internal/schedulestore"
	"github.com/xnovu/notification-engine/pkg/config"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json", TimeFormat: "2006-01-02T15:04:05Z07:00"})
}

func testController(t *testing.T) (*Controller, *catalog.FakeRepository, *schedulestore.FakeStore) {
	t.Helper()
	repo := catalog.NewFakeRepository()
	store := schedulestore.NewFakeStore()
	log := testLogger()
	rec := reconciler.New(repo, store, log)
	poller := polling.New(repo, store, log, 10, "tq", 0)
	cfg := &config.Config{
		Reconciliation: config.ReconciliationConfig{RulePollIntervalMS: 20},
		Polling: config.PollingConfig{
			PollIntervalMS:          20,
			FailedPollIntervalMS:    20,
			ScheduledPollIntervalMS: 20,
			BatchSize:               10,
		},
		ScheduleStore: config.ScheduleStoreConfig{Namespace: "default"},
	}
	c := New(repo, store, log, rec, poller, cfg)
	return c, repo, store
}

func TestControllerInitStartsLoops(t *testing.T) {
	c, _, _ := testController(t)
	cfg := &config.Config{
		Reconciliation: config.ReconciliationConfig{RulePollIntervalMS: 20},
		Polling: config.PollingConfig{
			PollIntervalMS: 20, FailedPollIntervalMS: 20, ScheduledPollIntervalMS: 20, BatchSize: 10,
		},
		ScheduleStore: config.ScheduleStoreConfig{Namespace: "default"},
	}

	if err := c.init(context.Background(), cfg); err != nil {
		t.Fatalf("init() error = %v", err)
	}
	if !c.Status().Initialized {
		t.Error("expected Status().Initialized == true after init")
	}
	defer c.Shutdown(context.Background())
}

func TestControllerPauseResumeBeforeInitFails(t *testing.T) {
	c, _, _ := testController(t)

	err := c.Pause(context.Background())
	var appErr *engineerrors.AppError
	if !isAppErr(err, &appErr) || appErr.Code != engineerrors.ErrCodeNotInitialized {
		t.Fatalf("expected NotInitialized, got %v", err)
	}
}

func TestControllerReloadCronRulesRunsFullPass(t *testing.T) {
	c, repo, store := testController(t)
	wf := &catalog.WorkflowDefinition{ID: "wf1", PublishStatus: catalog.PublishPublish}
	repo.Workflows["wf1"] = wf
	repo.Rules["r1"] = &catalog.NotificationRule{
		ID: "r1", Tenant: "t1", NotificationWorkflowID: "wf1",
		TriggerType: catalog.TriggerCron, TriggerConfig: &catalog.CronTrigger{Cron: "0 9 * * MON"},
		PublishStatus: catalog.PublishPublish, Workflow: wf,
	}

	cfg := &config.Config{
		Reconciliation: config.ReconciliationConfig{RulePollIntervalMS: 20},
		Polling: config.PollingConfig{
			PollIntervalMS: 20, FailedPollIntervalMS: 20, ScheduledPollIntervalMS: 20, BatchSize: 10,
		},
		ScheduleStore: config.ScheduleStoreConfig{Namespace: "default"},
	}
	if err := c.init(context.Background(), cfg); err != nil {
		t.Fatalf("init() error = %v", err)
	}
	defer c.Shutdown(context.Background())

	stats, err := c.ReloadCronRules(context.Background(), "")
	if err != nil {
		t.Fatalf("ReloadCronRules() error = %v", err)
	}
	// init's loop start already ran a full pass that created the schedule,
	// so the reload pass finds it and updates it.
	if stats.Updated != 1 {
		t.Errorf("stats = %+v, want 1 updated", stats)
	}
	all, _ := store.ListSchedules(context.Background(), schedulestore.SchedulePrefix)
	if len(all) != 1 {
		t.Errorf("expected 1 schedule, got %d", len(all))
	}
}

func TestControllerHealthCheckUnhealthyBeforeInit(t *testing.T) {
	c, _, _ := testController(t)
	h := c.HealthCheck(context.Background())
	if h.Status != HealthUnhealthy {
		t.Errorf("Status = %v, want unhealthy before init", h.Status)
	}
}

func TestControllerShutdownIsIdempotent(t *testing.T) {
	c, _, _ := testController(t)
	cfg := &config.Config{
		Reconciliation: config.ReconciliationConfig{RulePollIntervalMS: 20},
		Polling: config.PollingConfig{
			PollIntervalMS: 20, FailedPollIntervalMS: 20, ScheduledPollIntervalMS: 20, BatchSize: 10,
		},
		ScheduleStore: config.ScheduleStoreConfig{Namespace: "default"},
	}
	if err := c.init(context.Background(), cfg); err != nil {
		t.Fatalf("init() error = %v", err)
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown() error = %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestInitSingletonIsABarrier(t *testing.T) {
	ResetSingletonForTest()
	defer ResetSingletonForTest()

	c, _, _ := testController(t)
	cfg := &config.Config{
		Reconciliation: config.ReconciliationConfig{RulePollIntervalMS: 20},
		Polling: config.PollingConfig{
			PollIntervalMS: 20, FailedPollIntervalMS: 20, ScheduledPollIntervalMS: 20, BatchSize: 10,
		},
		ScheduleStore: config.ScheduleStoreConfig{Namespace: "default"},
	}

	if err := Init(context.Background(), c, cfg); err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	defer c.Shutdown(context.Background())

	c2, _, _ := testController(t)
	if err := Init(context.Background(), c2, cfg); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}

	got, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != c {
		t.Error("expected Get() to return the first-initialized controller, not a later one")
	}
}

func TestGetBeforeInitFails(t *testing.T) {
	ResetSingletonForTest()
	_, err := Get()
	var appErr *engineerrors.AppError
	if !isAppErr(err, &appErr) || appErr.Code != engineerrors.ErrCodeNotInitialized {
		t.Fatalf("expected NotInitialized, got %v", err)
	}
}

func isAppErr(err error, target **engineerrors.AppError) bool {
	appErr, ok := engineerrors.AsAppError(err)
	if ok {
		*target = appErr
	}
	return ok
}
