// Package engine implements the Engine Controller (§4.7): the process-wide
// singleton entry point that owns the Rule Reconciliation Loop's and the
// Notification Polling Pipeline's lifecycles.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/polling"
	"github.com/xnovu/notification-engine/internal/reconciler"
	"github.com/xnovu/notification-engine/internal/schedulestore"
	"github.com/xnovu/notification-engine/pkg/config"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/logger"
)

// Status is returned by Controller.Status.
type Status struct {
	Initialized   bool
	Reconciliation LoopStatus
	Polling        LoopStatus
	QueueStats     QueueStats
	ScheduledStats QueueStats
}

// LoopStatus reports a single loop's liveness.
type LoopStatus struct {
	LastTick time.Time
	Interval time.Duration
}

// QueueStats is the {in-flight count} shape surfaced by status().
type QueueStats struct {
	InFlight int
}

// HealthStatus is healthCheck()'s top-level verdict.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is healthCheck()'s return shape.
type Health struct {
	Status  HealthStatus
	Details map[string]string
}

// Controller owns init/pause/resume/reloadCronRules/status/healthCheck/shutdown.
// It is built once (by internal/enginewire's constructor graph or equivalent
// manual wiring in cmd/notification-engine) and then exposed as a process-wide
// singleton via Init/Get.
type Controller struct {
	Repo  catalog.Repository
	Store schedulestore.Store
	Log   *logger.Logger

	Reconciler    *reconciler.Reconciler
	reconcileLoop *reconciler.Loop

	Poller       *polling.Poller
	pollingLoops *polling.Loops

	reconcileInterval time.Duration

	mu          sync.Mutex
	initialized bool
	shutdown    bool
}

// New constructs a Controller from already-built components. Callers (the
// wire-generated injector, or cmd/notification-engine's manual fallback)
// are responsible for constructing repo/store/poller/reconciler first.
func New(repo catalog.Repository, store schedulestore.Store, log *logger.Logger, rec *reconciler.Reconciler, poller *polling.Poller, cfg *config.Config) *Controller {
	return &Controller{
		Repo:              repo,
		Store:             store,
		Log:               log,
		Reconciler:        rec,
		Poller:            poller,
		reconcileInterval: cfg.Reconciliation.RulePollInterval(),
	}
}

var (
	singletonMu sync.Mutex
	singleton   *Controller
	singletonErr error
)

// Init resolves the process-wide singleton: the first call runs c.init and
// every subsequent call (concurrent or not) observes the same outcome,
// implementing §5's "sync.Once plus a stored init-error" barrier semantics.
func Init(ctx context.Context, c *Controller, cfg *config.Config) error {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton != nil || singletonErr != nil {
		return singletonErr
	}
	singletonErr = c.init(ctx, cfg)
	if singletonErr == nil {
		singleton = c
	}
	return singletonErr
}

// Get returns the initialized singleton, or NotInitialized if Init has not
// yet succeeded.
func Get() (*Controller, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		return nil, engineerrors.Newf(engineerrors.ErrCodeNotInitialized, "engine controller accessed before init()")
	}
	return singleton, nil
}

// ResetSingletonForTest clears the package-level singleton. Test-only.
func ResetSingletonForTest() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton, singletonErr = nil, nil
}

// init warms the Schedule Store connection (EnsureNamespace; the namespace
// is not created), then starts the Rule Reconciliation Loop and the Polling
// Pipeline.
func (c *Controller) init(ctx context.Context, cfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	if err := c.Store.EnsureNamespace(ctx, cfg.ScheduleStore.Namespace); err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeScheduleStoreUnavailable, "engine: EnsureNamespace")
	}

	c.reconcileLoop = reconciler.NewLoop(c.Reconciler, c.reconcileInterval)
	if err := c.reconcileLoop.Start(ctx); err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeInternal, "engine: reconciliation loop start")
	}

	c.pollingLoops = polling.NewLoops(
		c.Poller,
		cfg.Polling.PollInterval(),
		cfg.Polling.FailedPollInterval(),
		cfg.Polling.ScheduledPollInterval(),
	)
	c.pollingLoops.Start(ctx)

	c.initialized = true
	return nil
}

// Pause suspends the Polling Pipeline's ticks and the Schedule Store's
// work-processing surface. Individual CRON schedules are left untouched.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return engineerrors.Newf(engineerrors.ErrCodeNotInitialized, "engine controller not initialized")
	}
	c.pollingLoops.Pause()
	return c.Store.PauseAll(ctx)
}

// Resume reverses Pause.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return engineerrors.Newf(engineerrors.ErrCodeNotInitialized, "engine controller not initialized")
	}
	c.pollingLoops.Resume()
	return c.Store.ResumeAll(ctx)
}

// ReloadCronRules triggers an immediate full reconciliation pass, scoped to
// tenant when non-empty.
func (c *Controller) ReloadCronRules(ctx context.Context, tenant string) (reconciler.Stats, error) {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()
	if !initialized {
		return reconciler.Stats{}, engineerrors.Newf(engineerrors.ErrCodeNotInitialized, "engine controller not initialized")
	}
	return c.Reconciler.SyncAllRules(ctx, tenant)
}

// Status reports the current lifecycle/loop state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Initialized: c.initialized,
		Reconciliation: LoopStatus{
			Interval: c.reconcileInterval,
		},
		Polling: LoopStatus{},
		QueueStats: QueueStats{
			InFlight: 0,
		},
	}
	if c.Reconciler != nil {
		s.Reconciliation.LastTick = c.Reconciler.LastTick()
	}
	if c.Poller != nil {
		s.QueueStats.InFlight = c.Poller.State.InFlightCount()
	}
	return s
}

// HealthCheck reports healthy/degraded/unhealthy: degraded if the
// reconciliation loop hasn't ticked within 2x its interval, unhealthy if init
// never completed or the store's EnsureNamespace returns an error. The
// polling loops' ticks are not checked, and TemporalStore's EnsureNamespace
// always returns nil, so an unreachable Temporal server is not reported.
func (c *Controller) HealthCheck(ctx context.Context) Health {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()

	details := map[string]string{}

	if !initialized {
		details["reason"] = "not initialized"
		return Health{Status: HealthUnhealthy, Details: details}
	}

	if err := c.Store.EnsureNamespace(ctx, ""); err != nil {
		details["schedule_store"] = err.Error()
		return Health{Status: HealthUnhealthy, Details: details}
	}

	degraded := false
	if lastTick := c.Reconciler.LastTick(); !lastTick.IsZero() && time.Since(lastTick) > 2*c.reconcileInterval {
		degraded = true
		details["reconciliation"] = "last tick stale"
	}

	if degraded {
		return Health{Status: HealthDegraded, Details: details}
	}
	return Health{Status: HealthHealthy, Details: details}
}

// Shutdown stops both loops (waiting up to 10s each) and releases the
// Catalog/Schedule Store connections. Idempotent.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil
	}
	c.shutdown = true

	if c.reconcileLoop != nil {
		stopWithDeadline(c.reconcileLoop.Stop, 10*time.Second)
	}
	if c.pollingLoops != nil {
		stopWithDeadline(c.pollingLoops.Stop, 10*time.Second)
	}

	if err := c.Store.Close(ctx); err != nil {
		c.Log.Error().Err(err).Msg("engine: schedule store close failed")
	}
	return c.Repo.Shutdown(ctx)
}

// stopWithDeadline runs stop in a goroutine and waits up to deadline for it
// to return, so a wedged loop can't block process shutdown indefinitely.
func stopWithDeadline(stop func(), deadline time.Duration) {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadline):
	}
}
