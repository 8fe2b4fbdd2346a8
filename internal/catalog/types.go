// Package catalog provides typed, tenant-scoped access to the Catalog DB —
// the relational store of record for workflow definitions, notification
// rules, notification records, and templates. It is the only component
// permitted to speak to the database directly.
package catalog

import "time"

// PublishStatus mirrors the catalog's publish_status column.
type PublishStatus string

const (
	PublishDraft   PublishStatus = "DRAFT"
	PublishPublish PublishStatus = "PUBLISH"
)

// WorkflowType distinguishes static from dynamic workflow definitions.
type WorkflowType string

const (
	WorkflowStatic  WorkflowType = "STATIC"
	WorkflowDynamic WorkflowType = "DYNAMIC"
)

// Channel is one of the five delivery channels a workflow/template can target.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelInApp Channel = "IN_APP"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelChat  Channel = "CHAT"
)

// TriggerType identifies what drives a notification rule. Only CRON is
// reconciled against the Schedule Store; other trigger types are stored
// but out of scope for this engine's scheduling.
type TriggerType string

const (
	TriggerCron TriggerType = "CRON"
)

// NotificationStatus is the lifecycle state of a Notification Record.
type NotificationStatus string

const (
	StatusPending    NotificationStatus = "PENDING"
	StatusProcessing NotificationStatus = "PROCESSING"
	StatusSent       NotificationStatus = "SENT"
	StatusFailed     NotificationStatus = "FAILED"
	StatusRetracted  NotificationStatus = "RETRACTED"
)

// WorkflowDefinition describes a multi-channel notification template set.
// Identified by (WorkflowKey, Tenant); Tenant nil means a global definition.
type WorkflowDefinition struct {
	ID               string
	Tenant           *string
	WorkflowKey      string
	Name             string
	Description      string
	WorkflowType     WorkflowType
	DefaultChannels  []Channel
	TemplateRefs     map[Channel]string
	PayloadSchema    map[string]interface{}
	PublishStatus    PublishStatus
	Deactivated      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Eligible reports whether a workflow definition may be used by the engine.
func (w *WorkflowDefinition) Eligible() bool {
	return w != nil && w.PublishStatus == PublishPublish && !w.Deactivated
}

// CronTrigger is the shape of trigger_config for trigger_type = CRON.
type CronTrigger struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

// TimezoneOrDefault returns the configured timezone, defaulting to UTC.
func (c CronTrigger) TimezoneOrDefault() string {
	if c.Timezone == "" {
		return "UTC"
	}
	return c.Timezone
}

// NotificationRule is a declarative trigger for rule-fired notifications.
type NotificationRule struct {
	ID                     string
	Tenant                 string
	BusinessID             string
	Name                   string
	NotificationWorkflowID string
	TriggerType            TriggerType
	TriggerConfig          *CronTrigger
	RulePayload            map[string]interface{}
	PublishStatus          PublishStatus
	Deactivated            bool
	CreatedAt              time.Time
	UpdatedAt              time.Time

	// Workflow is populated by getActiveCronRules, which joins the rule to
	// its Workflow Definition so callers never need a second round trip.
	Workflow *WorkflowDefinition
}

// ScheduleID is the deterministic Schedule Store id for this rule.
func (r *NotificationRule) ScheduleID() string {
	tenant := r.Tenant
	if tenant == "" {
		tenant = "null"
	}
	return "rule-" + r.ID + "-" + tenant
}

// Active reports whether the rule should have a live, unpaused schedule.
// A rule is active iff published, not deactivated, CRON-triggered with a
// parseable expression, and its workflow definition is itself eligible.
// Parseability is checked by the caller (internal/reconciler) via
// robfig/cron since this package has no CRON parser dependency of its own.
func (r *NotificationRule) Active() bool {
	if r == nil {
		return false
	}
	if r.PublishStatus != PublishPublish || r.Deactivated {
		return false
	}
	if r.TriggerType != TriggerCron || r.TriggerConfig == nil || r.TriggerConfig.Cron == "" {
		return false
	}
	return r.Workflow.Eligible()
}

// ErrorDetails is the structured shape stored in notification.error_details.
type ErrorDetails struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Retries int    `json:"retries"`
}

// NotificationRecord is a concrete unit of work: once dispatchable, it is
// rendered and sent exactly once.
type NotificationRecord struct {
	ID                     string
	Tenant                 string
	BusinessID             string
	Name                   string
	Description            string
	Payload                map[string]interface{}
	Recipients             []string
	NotificationWorkflowID string
	NotificationRuleID     *string
	Channels               []Channel
	Overrides              map[string]interface{}
	PublishStatus          PublishStatus
	Deactivated            bool
	NotificationStatus     NotificationStatus
	ScheduledFor           *time.Time
	TransactionID          *string
	ErrorDetails           *ErrorDetails
	ProcessedAt            *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// DispatchableNow reports whether the record may be admitted immediately:
// published, not deactivated, PENDING, and not scheduled into the future.
func (n *NotificationRecord) DispatchableNow(now time.Time) bool {
	if n.PublishStatus != PublishPublish || n.Deactivated {
		return false
	}
	if n.NotificationStatus != StatusPending {
		return false
	}
	return n.ScheduledFor == nil || !n.ScheduledFor.After(now)
}

// Template is a reusable body/subject pair resolved by the Template Engine.
type Template struct {
	ID            string
	Tenant        *string
	TemplateKey   string
	Name          string
	SubjectTmpl   *string
	BodyTmpl      string
	ChannelType   Channel
	Variables     []string
	PublishStatus PublishStatus
	Deactivated   bool
}

// Resolvable reports whether the template may be used in the given tenant
// context: published, not deactivated, and either global or tenant-matched.
func (t *Template) Resolvable(tenant string) bool {
	if t == nil {
		return false
	}
	if t.PublishStatus != PublishPublish || t.Deactivated {
		return false
	}
	return t.Tenant == nil || *t.Tenant == tenant
}
