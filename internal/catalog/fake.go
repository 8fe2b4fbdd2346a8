package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

// FakeRepository is an in-memory Repository used by unit tests across the
// engine. It enforces the same tenant-scoping and conditional-update
// semantics as PostgresRepository, without a database.
type FakeRepository struct {
	mu            sync.Mutex
	Rules         map[string]*NotificationRule
	Workflows     map[string]*WorkflowDefinition
	Notifications map[string]*NotificationRecord
	Templates     map[string]*Template
}

// NewFakeRepository returns an empty fake repository.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		Rules:         make(map[string]*NotificationRule),
		Workflows:     make(map[string]*WorkflowDefinition),
		Notifications: make(map[string]*NotificationRecord),
		Templates:     make(map[string]*Template),
	}
}

func (f *FakeRepository) GetActiveCronRules(ctx context.Context, tenant string) ([]*NotificationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*NotificationRule
	for _, rule := range f.Rules {
		if tenant != "" && rule.Tenant != tenant {
			continue
		}
		if rule.Workflow == nil {
			rule.Workflow = f.Workflows[rule.NotificationWorkflowID]
		}
		if rule.Active() {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeRepository) GetRule(ctx context.Context, id, tenant string) (*NotificationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rule, ok := f.Rules[id]
	if !ok || rule.Tenant != tenant {
		return nil, nil
	}
	if rule.Workflow == nil {
		rule.Workflow = f.Workflows[rule.NotificationWorkflowID]
	}
	return rule, nil
}

func (f *FakeRepository) GetWorkflowDefinition(ctx context.Context, id, tenant string) (*WorkflowDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if wf, ok := f.Workflows[id]; ok && wf.Eligible() {
		if wf.Tenant == nil || *wf.Tenant == tenant {
			return wf, nil
		}
	}
	return nil, nil
}

func (f *FakeRepository) GetNotification(ctx context.Context, id, tenant string) (*NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.Notifications[id]
	if !ok || rec.Tenant != tenant {
		return nil, nil
	}
	return rec, nil
}

func (f *FakeRepository) GetNotificationByID(ctx context.Context, id string) (*NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.Notifications[id], nil
}

func (f *FakeRepository) PollNotifications(ctx context.Context, opts PollOptions) ([]*NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if opts.BatchSize <= 0 || opts.BatchSize > 1000 {
		return nil, engineerrors.ErrValidation("batchSize must be in 1..1000")
	}

	now := time.Now().UTC()
	statuses := opts.StatusIn
	if len(statuses) == 0 && !opts.IncludeProcessed {
		statuses = []NotificationStatus{StatusPending, StatusFailed}
	}
	inStatus := func(s NotificationStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if want == s {
				return true
			}
		}
		return false
	}

	var matched []*NotificationRecord
	for _, rec := range f.Notifications {
		if opts.Tenant != "" && rec.Tenant != opts.Tenant {
			continue
		}
		if rec.PublishStatus != PublishPublish || rec.Deactivated {
			continue
		}
		if !inStatus(rec.NotificationStatus) {
			continue
		}
		switch opts.ScheduledMode {
		case ScheduledOnly:
			if rec.ScheduledFor == nil || rec.ScheduledFor.After(now) {
				continue
			}
		case ScheduledAny:
			// no filter
		default: // eligible_now
			if rec.ScheduledFor != nil && rec.ScheduledFor.After(now) {
				continue
			}
		}
		if opts.UpdatedAfter != nil && !rec.UpdatedAt.After(*opts.UpdatedAfter) {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
	})

	if len(matched) > opts.BatchSize {
		matched = matched[:opts.BatchSize]
	}
	return matched, nil
}

func (f *FakeRepository) CreateNotification(ctx context.Context, record *NotificationRecord) (*NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(record.Recipients) == 0 {
		return nil, engineerrors.New(engineerrors.ErrCodeNoRecipients, "notification requires at least one recipient")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now
	if record.NotificationStatus == "" {
		record.NotificationStatus = StatusPending
	}
	if record.PublishStatus == "" {
		record.PublishStatus = PublishPublish
	}
	f.Notifications[record.ID] = record
	return record, nil
}

func (f *FakeRepository) UpdateNotificationStatus(ctx context.Context, id, tenant string, newStatus NotificationStatus, update StatusUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.Notifications[id]
	if !ok || rec.Tenant != tenant {
		return false, nil
	}
	if len(update.PriorStates) > 0 {
		allowed := false
		for _, s := range update.PriorStates {
			if rec.NotificationStatus == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, nil
		}
	}

	rec.NotificationStatus = newStatus
	rec.UpdatedAt = time.Now().UTC()
	if update.ErrorDetails != nil {
		rec.ErrorDetails = update.ErrorDetails
	}
	if update.TransactionID != nil {
		rec.TransactionID = update.TransactionID
	}
	if newStatus == StatusSent || newStatus == StatusFailed || newStatus == StatusRetracted {
		now := time.Now().UTC()
		rec.ProcessedAt = &now
	}
	return true, nil
}

func (f *FakeRepository) GetLastRuleUpdate(ctx context.Context, tenant string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var max time.Time
	for _, rule := range f.Rules {
		if rule.TriggerType != TriggerCron {
			continue
		}
		if tenant != "" && rule.Tenant != tenant {
			continue
		}
		if rule.UpdatedAt.After(max) {
			max = rule.UpdatedAt
		}
	}
	return max, nil
}

func (f *FakeRepository) GetTemplate(ctx context.Context, key, tenant string) (*Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Prefer a tenant-scoped match over the global one.
	var global *Template
	for _, tmpl := range f.Templates {
		if tmpl.TemplateKey != key {
			continue
		}
		if tmpl.Tenant != nil && *tmpl.Tenant == tenant {
			return tmpl, nil
		}
		if tmpl.Tenant == nil {
			global = tmpl
		}
	}
	return global, nil
}

func (f *FakeRepository) Shutdown(ctx context.Context) error { return nil }
