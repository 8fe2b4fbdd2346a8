package polling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/schedulestore"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/logger"
)

var tracer = otel.Tracer("notification-engine/polling")

// DefaultRetryCeiling is the failed-retry loop's admission ceiling used when
// the caller doesn't supply one (JOB_RETRY_ATTEMPTS's config default of 3;
// see pkg/config.PollingConfig.JobRetryAttempts).
const DefaultRetryCeiling = 3

// TaskQueue identifies the Schedule Store task queue notification-trigger
// workflows are started on.
type TaskQueue string

// Poller owns the three cooperating polling loops and their shared State.
type Poller struct {
	Repo         catalog.Repository
	Store        schedulestore.Store
	Log          *logger.Logger
	State        *State
	BatchSize    int
	TaskQueue    string
	Retry        *schedulestore.RetryPolicy
	RetryCeiling int

	lastNewWorkTick      time.Time
	lastFailedRetryTick  time.Time
	lastDueScheduledTick time.Time
}

// New returns a Poller over repo/store with the given batch size, task
// queue, and failed-retry admission ceiling (§6.4: JOB_RETRY_ATTEMPTS,
// default 3, governs the failed-retry loop's admission — a different knob
// from the activity's own §4.4 max-attempts). batchSize is clamped into
// 1..1000 per §4.3's pollNotifications contract; retryCeiling <= 0 falls
// back to DefaultRetryCeiling.
func New(repo catalog.Repository, store schedulestore.Store, log *logger.Logger, batchSize int, taskQueue string, retryCeiling int) *Poller {
	if batchSize <= 0 {
		batchSize = 1
	}
	if batchSize > 1000 {
		batchSize = 1000
	}
	if retryCeiling <= 0 {
		retryCeiling = DefaultRetryCeiling
	}
	return &Poller{
		Repo:         repo,
		Store:        store,
		Log:          log,
		State:        NewState(),
		BatchSize:    batchSize,
		TaskQueue:    taskQueue,
		RetryCeiling: retryCeiling,
	}
}

// TickNewWork runs one tick of the new-work loop (§4.3): polls for records
// updated after the current watermark that are eligible now, admits each,
// and advances the watermark. Returns the number of records returned by the
// poll, so the caller can implement backpressure (re-tick immediately when
// this equals BatchSize).
func (p *Poller) TickNewWork(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "polling.new.tick")
	defer span.End()

	watermark := p.State.Watermark()
	records, err := p.Repo.PollNotifications(ctx, catalog.PollOptions{
		BatchSize:     p.BatchSize,
		UpdatedAfter:  &watermark,
		ScheduledMode: catalog.ScheduledEligibleNow,
	})
	if err != nil {
		span.RecordError(err)
		return 0, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "polling: new-work pollNotifications")
	}

	for _, rec := range records {
		p.admit(ctx, rec, catalog.StatusPending)
		p.State.AdvanceWatermark(rec.UpdatedAt)
	}

	p.lastNewWorkTick = time.Now()
	span.SetAttributes(attribute.Int("polling.records_admitted", len(records)))
	return len(records), nil
}

// TickFailedRetry runs one tick of the failed-retry loop (§4.3, default 60s):
// selects FAILED records (ignoring scheduled_for) below the retry ceiling and
// re-admits them.
func (p *Poller) TickFailedRetry(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "polling.failed.tick")
	defer span.End()

	records, err := p.Repo.PollNotifications(ctx, catalog.PollOptions{
		BatchSize:        p.BatchSize,
		IncludeProcessed: true,
		ScheduledMode:    catalog.ScheduledAny,
		StatusIn:         []catalog.NotificationStatus{catalog.StatusFailed},
	})
	if err != nil {
		span.RecordError(err)
		return 0, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "polling: failed-retry pollNotifications")
	}

	admitted := 0
	for _, rec := range records {
		if rec.ErrorDetails != nil && rec.ErrorDetails.Retries >= p.RetryCeiling {
			continue
		}
		p.admit(ctx, rec, catalog.StatusFailed)
		admitted++
	}

	p.lastFailedRetryTick = time.Now()
	span.SetAttributes(
		attribute.Int("polling.records_examined", len(records)),
		attribute.Int("polling.records_admitted", admitted),
	)
	return admitted, nil
}

// TickDueScheduled runs one tick of the due-scheduled loop (§4.3, default
// 30s): selects PENDING records whose scheduled_for has arrived
// (only_scheduled mode filters to scheduled_for <= now), in
// pollNotifications' updated_at, id order; the batch is not ordered by
// scheduled_for.
func (p *Poller) TickDueScheduled(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "polling.scheduled.tick")
	defer span.End()

	records, err := p.Repo.PollNotifications(ctx, catalog.PollOptions{
		BatchSize:     p.BatchSize,
		ScheduledMode: catalog.ScheduledOnly,
		StatusIn:      []catalog.NotificationStatus{catalog.StatusPending},
	})
	if err != nil {
		span.RecordError(err)
		return 0, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "polling: due-scheduled pollNotifications")
	}

	for _, rec := range records {
		p.admit(ctx, rec, catalog.StatusPending)
	}

	p.lastDueScheduledTick = time.Now()
	span.SetAttributes(attribute.Int("polling.records_admitted", len(records)))
	return len(records), nil
}

// admit implements §4.3's per-record admission algorithm, steps 1-6.
// fromStatus is the conditional prior-state PROCESSING transition requires:
// PENDING for the new-work/due-scheduled loops, FAILED for the retry loop.
func (p *Poller) admit(ctx context.Context, rec *catalog.NotificationRecord, fromStatus catalog.NotificationStatus) {
	if !p.State.TryAdmit(rec.ID) {
		return
	}

	ok, err := p.Repo.UpdateNotificationStatus(ctx, rec.ID, rec.Tenant, catalog.StatusProcessing, catalog.StatusUpdate{
		PriorStates: []catalog.NotificationStatus{fromStatus},
	})
	if err != nil {
		p.Log.Error().Err(err).Str("notification_id", rec.ID).Msg("polling: updateNotificationStatus(PROCESSING) failed")
		p.State.Release(rec.ID)
		return
	}
	if !ok {
		p.State.Release(rec.ID)
		return
	}

	delay := startDelay(rec)
	workflowID := "trigger-notification-" + rec.ID + "-" + uuid.New().String()

	err = p.Store.StartWorkflow(ctx, "notification-trigger", workflowID, map[string]interface{}{
		"notification_id": rec.ID,
	}, schedulestore.StartWorkflowOptions{
		TaskQueue:   p.TaskQueue,
		StartDelay:  delay,
		RetryPolicy: p.Retry,
	})
	if err != nil {
		p.Log.Error().Err(err).Str("notification_id", rec.ID).Msg("polling: StartWorkflow failed, rolling back")
		if _, rbErr := p.Repo.UpdateNotificationStatus(ctx, rec.ID, rec.Tenant, fromStatus, catalog.StatusUpdate{
			PriorStates: []catalog.NotificationStatus{catalog.StatusProcessing},
		}); rbErr != nil {
			p.Log.Error().Err(rbErr).Str("notification_id", rec.ID).Msg("polling: rollback updateNotificationStatus failed")
		}
	}
	p.State.Release(rec.ID)
}

// startDelay computes §4.3 step 4's startDelayMs: 0 for immediate/past, the
// remaining duration (clamped >= 0) for a future scheduled_for.
func startDelay(rec *catalog.NotificationRecord) time.Duration {
	if rec.ScheduledFor == nil {
		return 0
	}
	d := time.Until(*rec.ScheduledFor)
	if d < 0 {
		return 0
	}
	return d
}
