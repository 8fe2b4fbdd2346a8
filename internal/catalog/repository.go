package catalog

import (
	"context"
	"time"
)

// ScheduledMode constrains pollNotifications by the record's scheduled_for column.
type ScheduledMode string

const (
	ScheduledAny        ScheduledMode = "any"
	ScheduledEligibleNow ScheduledMode = "eligible_now"
	ScheduledOnly       ScheduledMode = "only_scheduled"
)

// PollOptions parameterizes pollNotifications (§4.3).
type PollOptions struct {
	Tenant           string
	BatchSize        int
	UpdatedAfter     *time.Time
	IncludeProcessed bool
	ScheduledMode    ScheduledMode
	// StatusIn, when non-empty, restricts the query to these statuses
	// instead of the default {PENDING, FAILED}. Used by the failed-retry
	// and due-scheduled loops, which narrow to a single status.
	StatusIn []NotificationStatus
}

// StatusUpdate is the conditional write payload for updateNotificationStatus.
type StatusUpdate struct {
	ErrorDetails  *ErrorDetails
	TransactionID *string
	// PriorStates lists the statuses the row must currently be in for the
	// write to take effect. An empty list means "no prior-state guard".
	PriorStates []NotificationStatus
}

// Repository is the single, cohesive interface through which the rest of
// the engine reads and writes the Catalog DB. It is the only component
// permitted to speak to the database.
type Repository interface {
	// GetActiveCronRules returns CRON rules joined with their workflow
	// definitions, filtered to rules and workflows that both pass their
	// eligibility invariants. Tenant empty means "all tenants".
	GetActiveCronRules(ctx context.Context, tenant string) ([]*NotificationRule, error)

	// GetRule fetches a single rule by id, tenant-scoped. Returns nil, nil
	// if not found.
	GetRule(ctx context.Context, id, tenant string) (*NotificationRule, error)

	// GetWorkflowDefinition tries a tenant-scoped lookup then falls back to
	// the global (nil-tenant) definition, returning the first eligible one.
	GetWorkflowDefinition(ctx context.Context, id, tenant string) (*WorkflowDefinition, error)

	// PollNotifications returns dispatchable notifications ordered by
	// (updated_at asc, id asc), capped at opts.BatchSize.
	PollNotifications(ctx context.Context, opts PollOptions) ([]*NotificationRecord, error)

	// GetNotification fetches a single notification record by id, tenant-scoped.
	GetNotification(ctx context.Context, id, tenant string) (*NotificationRecord, error)

	// GetNotificationByID fetches a notification record by its globally
	// unique id with no tenant filter. Used by the notification-trigger
	// activity, whose schedule-store input carries only the notification
	// id (§4.4).
	GetNotificationByID(ctx context.Context, id string) (*NotificationRecord, error)

	// CreateNotification inserts a new notification record.
	CreateNotification(ctx context.Context, record *NotificationRecord) (*NotificationRecord, error)

	// UpdateNotificationStatus performs a conditional status transition:
	// the write only takes effect if the row's current status is one of
	// update.PriorStates (or unconditionally, if PriorStates is empty).
	// Returns whether the row was actually updated.
	UpdateNotificationStatus(ctx context.Context, id, tenant string, newStatus NotificationStatus, update StatusUpdate) (bool, error)

	// GetLastRuleUpdate returns the max updated_at across CRON rules, used
	// to seed the reconciliation watermark. Tenant empty means all tenants.
	GetLastRuleUpdate(ctx context.Context, tenant string) (time.Time, error)

	// GetTemplate resolves a template by key, tenant-scoped with global fallback.
	GetTemplate(ctx context.Context, key, tenant string) (*Template, error)

	// Shutdown releases the underlying connection pool. Idempotent.
	Shutdown(ctx context.Context) error
}
