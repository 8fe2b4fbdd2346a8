// Package reconciler implements the Rule Reconciliation Loop (§4.2): it
// keeps the Schedule Store's set of schedule objects exactly matching the
// set of active CRON rules in the Catalog DB.
package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/schedulestore"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/logger"
)

// Stats is the {created, updated, deleted, errors} counter set returned by
// a reconciliation pass.
type Stats struct {
	Created int
	Updated int
	Deleted int
	Errors  int
}

// Reconciler owns the full-pass and incremental reconciliation algorithms.
type Reconciler struct {
	Repo  catalog.Repository
	Store schedulestore.Store
	Log   *logger.Logger

	cronParser cron.Parser

	mu        sync.Mutex
	watermark time.Time
	lastTick  time.Time
}

// New returns a Reconciler over repo/store, using the standard 5-field
// CRON parser for admission-time parseability checks.
func New(repo catalog.Repository, store schedulestore.Store, log *logger.Logger) *Reconciler {
	return &Reconciler{
		Repo:       repo,
		Store:      store,
		Log:        log,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Parseable reports whether expr is a syntactically valid standard CRON
// expression. The Schedule Store remains the authoritative evaluator; this
// is only an admission-time sanity check.
func (r *Reconciler) Parseable(expr string) bool {
	_, err := r.cronParser.Parse(expr)
	return err == nil
}

// LastTick returns the time of the most recently completed pass, for
// healthCheck's "hasn't ticked within 2x its interval" computation.
func (r *Reconciler) LastTick() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTick
}

// SyncAllRules performs a full reconciliation pass scoped to tenant (empty
// means all tenants) and returns its stats (§4.2 algorithm, steps 1-6).
func (r *Reconciler) SyncAllRules(ctx context.Context, tenant string) (Stats, error) {
	var stats Stats

	rules, err := r.Repo.GetActiveCronRules(ctx, tenant)
	if err != nil {
		return stats, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "reconciler: getActiveCronRules")
	}

	schedules, err := r.Store.ListSchedules(ctx, schedulestore.SchedulePrefix)
	if err != nil {
		return stats, engineerrors.Wrap(err, engineerrors.ErrCodeScheduleStoreUnavailable, "reconciler: listSchedules")
	}

	currentIDs := make(map[string]bool, len(schedules))
	for _, s := range schedules {
		currentIDs[s.ID] = true
	}

	expectedIDs := make(map[string]bool, len(rules))
	for _, rule := range rules {
		id := rule.ScheduleID()
		expectedIDs[id] = true

		if !r.Parseable(rule.TriggerConfig.Cron) {
			r.Log.Warn().Str("rule_id", rule.ID).Str("cron", rule.TriggerConfig.Cron).Msg("reconciler: unparseable cron expression, skipping")
			stats.Errors++
			continue
		}

		if currentIDs[id] {
			if err := r.updateSchedule(ctx, rule); err != nil {
				r.logScheduleError(rule.ID, "update", err)
				stats.Errors++
				continue
			}
			stats.Updated++
		} else {
			if err := r.createSchedule(ctx, rule); err != nil {
				r.logScheduleError(rule.ID, "create", err)
				stats.Errors++
				continue
			}
			stats.Created++
		}
	}

	for id := range currentIDs {
		if expectedIDs[id] {
			continue
		}
		if err := r.Store.DeleteSchedule(ctx, id); err != nil {
			if isNotFoundErr(err) {
				continue
			}
			r.Log.Error().Err(err).Str("schedule_id", id).Msg("reconciler: deleteSchedule failed")
			stats.Errors++
			continue
		}
		stats.Deleted++
	}

	r.mu.Lock()
	r.lastTick = time.Now()
	r.mu.Unlock()

	return stats, nil
}

// SyncRule reconciles a single rule: create-or-update its schedule if
// eligible, delete it otherwise (§4.2 syncRule).
func (r *Reconciler) SyncRule(ctx context.Context, rule *catalog.NotificationRule) error {
	id := rule.ScheduleID()

	if !rule.Active() {
		err := r.Store.DeleteSchedule(ctx, id)
		if err != nil && !isNotFoundErr(err) {
			return err
		}
		return nil
	}

	if !r.Parseable(rule.TriggerConfig.Cron) {
		return engineerrors.Newf(engineerrors.ErrCodeValidation, "rule %s has an unparseable cron expression", rule.ID)
	}

	existing, err := r.Store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return r.updateSchedule(ctx, rule)
	}
	return r.createSchedule(ctx, rule)
}

// ReconcileSchedules is an alias for SyncAllRules returning the stats
// shape named by §4.2's public contract.
func (r *Reconciler) ReconcileSchedules(ctx context.Context, tenant string) (Stats, error) {
	return r.SyncAllRules(ctx, tenant)
}

func (r *Reconciler) createSchedule(ctx context.Context, rule *catalog.NotificationRule) error {
	spec, action, state, memo := scheduleShape(rule)
	return r.Store.CreateSchedule(ctx, rule.ScheduleID(), spec, action, state, memo)
}

func (r *Reconciler) updateSchedule(ctx context.Context, rule *catalog.NotificationRule) error {
	spec, action, state, memo := scheduleShape(rule)
	return r.Store.UpdateSchedule(ctx, rule.ScheduleID(), func(s *schedulestore.Schedule) error {
		s.Spec, s.State, s.Memo = spec, state, memo
		return nil
	})
}

// scheduleShape implements §4.2's schedule/action/state/memo shape.
func scheduleShape(rule *catalog.NotificationRule) (schedulestore.ScheduleSpec, schedulestore.ScheduleAction, schedulestore.ScheduleState, schedulestore.ScheduleMemo) {
	spec := schedulestore.ScheduleSpec{
		CronExpressions: []string{rule.TriggerConfig.Cron},
		Timezone:        rule.TriggerConfig.TimezoneOrDefault(),
	}
	action := schedulestore.ScheduleAction{
		WorkflowType: "rule-scheduled",
		Args: map[string]interface{}{
			"rule_id":      rule.ID,
			"tenant":       rule.Tenant,
			"business_id":  rule.BusinessID,
			"workflow_id":  rule.NotificationWorkflowID,
			"rule_payload": rule.RulePayload,
		},
	}
	state := schedulestore.ScheduleState{
		Paused: rule.Deactivated || rule.PublishStatus != catalog.PublishPublish,
	}
	memo := schedulestore.ScheduleMemo{
		"rule_id":   rule.ID,
		"tenant":    rule.Tenant,
		"rule_name": rule.Name,
	}
	return spec, action, state, memo
}

func (r *Reconciler) logScheduleError(ruleID, op string, err error) {
	r.Log.Error().Err(err).Str("rule_id", ruleID).Str("op", op).Msg("reconciler: schedule mutation failed")
}

func isNotFoundErr(err error) bool {
	if appErr, ok := engineerrors.AsAppError(err); ok {
		return appErr.Code == engineerrors.ErrCodeScheduleStoreNotFound
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
