// Package activities implements the two Workflow Activity families the
// Schedule Store's workflows invoke (§4.4): rule-scheduled, fired by a
// CRON schedule, and notification-trigger, fired by the Polling Pipeline.
// Both must be idempotent — the Schedule Store retries on failure.
package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/dispatch"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/events"
	"github.com/xnovu/notification-engine/pkg/logger"
)

// Activities bundles the dependencies both activity families need.
type Activities struct {
	Repo      catalog.Repository
	Dispatch  *dispatch.Adapter
	Log       *logger.Logger
	Publisher events.Publisher
}

// NewActivities wires repo and dispatcher into an Activities set. Publisher
// starts as events.NoopPublisher{} (WithPublisher replaces it), so it is
// never nil and call sites publish lifecycle events without a nil check.
func NewActivities(repo catalog.Repository, dispatcher *dispatch.Adapter, log *logger.Logger) *Activities {
	return &Activities{Repo: repo, Dispatch: dispatcher, Log: log, Publisher: events.NoopPublisher{}}
}

// WithPublisher overrides the default no-op lifecycle event publisher.
func (a *Activities) WithPublisher(p events.Publisher) *Activities {
	a.Publisher = p
	return a
}

// RuleScheduledInput is the payload a fired CRON schedule passes to the
// rule-scheduled activity (§4.2's schedule action args).
type RuleScheduledInput struct {
	RuleID      string                 `json:"rule_id"`
	Tenant      string                 `json:"tenant"`
	BusinessID  string                 `json:"business_id"`
	WorkflowID  string                 `json:"workflow_id"`
	RulePayload map[string]interface{} `json:"rule_payload"`
}

// RuleScheduled materializes a Notification Record for a fired CRON rule.
// It never dispatches itself — the Polling Pipeline picks the record up.
func (a *Activities) RuleScheduled(ctx context.Context, in RuleScheduledInput) error {
	if in.Tenant == "" {
		return engineerrors.New(engineerrors.ErrCodeMissingTenant, "rule-scheduled: tenant is required")
	}

	rule, err := a.Repo.GetRule(ctx, in.RuleID, in.Tenant)
	if err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "rule-scheduled: getRule")
	}
	if rule == nil {
		return engineerrors.Newf(engineerrors.ErrCodeRuleNotFound, "rule %s not found for tenant %s", in.RuleID, in.Tenant)
	}

	if !rule.Active() {
		a.Log.Info().Str("rule_id", in.RuleID).Str("tenant", in.Tenant).Msg("rule-scheduled: rule no longer active, skipping (pause race)")
		return nil
	}

	wf, err := a.Repo.GetWorkflowDefinition(ctx, rule.NotificationWorkflowID, in.Tenant)
	if err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "rule-scheduled: getWorkflowDefinition")
	}
	if wf == nil {
		return engineerrors.Newf(engineerrors.ErrCodeWorkflowNotFound, "workflow %s not found for tenant %s", rule.NotificationWorkflowID, in.Tenant)
	}

	recipients, err := recipientsFromPayload(in.RulePayload)
	if err != nil {
		return err
	}

	channels := wf.DefaultChannels
	if len(channels) == 0 {
		channels = []catalog.Channel{catalog.ChannelInApp}
	}

	_, err = a.Repo.CreateNotification(ctx, &catalog.NotificationRecord{
		Tenant:                 in.Tenant,
		BusinessID:             in.BusinessID,
		Name:                   "Scheduled: " + rule.Name,
		Payload:                in.RulePayload,
		Recipients:             recipients,
		NotificationWorkflowID: rule.NotificationWorkflowID,
		NotificationRuleID:     &rule.ID,
		Channels:               channels,
		PublishStatus:          catalog.PublishPublish,
		NotificationStatus:     catalog.StatusPending,
	})
	if err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "rule-scheduled: createNotification")
	}
	return nil
}

// recipientsFromPayload derives recipients per §4.4 step 5: the
// "recipients" array if present, else a singleton "recipient", else
// NoRecipients.
func recipientsFromPayload(payload map[string]interface{}) ([]string, error) {
	if raw, ok := payload["recipients"]; ok {
		if arr, ok := raw.([]interface{}); ok && len(arr) > 0 {
			out := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out, nil
			}
		}
	}
	if raw, ok := payload["recipient"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return []string{s}, nil
		}
	}
	return nil, engineerrors.New(engineerrors.ErrCodeNoRecipients, "rule_payload has neither recipients nor recipient")
}

// NotificationTriggerInput is the payload the polling pipeline passes to
// the notification-trigger activity (§4.4 — notification_id alone).
type NotificationTriggerInput struct {
	NotificationID string `json:"notification_id"`
}

// NotificationTrigger loads, re-validates, and dispatches a single
// Notification Record, transitioning its status on completion (§4.4).
func (a *Activities) NotificationTrigger(ctx context.Context, in NotificationTriggerInput) error {
	record, err := a.Repo.GetNotificationByID(ctx, in.NotificationID)
	if err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "notification-trigger: getNotification")
	}
	if record == nil {
		return engineerrors.Newf(engineerrors.ErrCodeNotFound, "notification %s not found", in.NotificationID)
	}

	if record.NotificationStatus != catalog.StatusProcessing {
		a.Log.Info().Str("notification_id", in.NotificationID).Str("status", string(record.NotificationStatus)).
			Msg("notification-trigger: status reverted by someone else, skipping")
		return nil
	}

	if record.PublishStatus != catalog.PublishPublish || record.Deactivated {
		_, err := a.Repo.UpdateNotificationStatus(ctx, record.ID, record.Tenant, catalog.StatusRetracted, catalog.StatusUpdate{
			PriorStates: []catalog.NotificationStatus{catalog.StatusProcessing},
		})
		if err != nil {
			return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "notification-trigger: updateNotificationStatus(RETRACTED)")
		}
		return engineerrors.New(engineerrors.ErrCodeRetracted, "notification no longer dispatchable")
	}

	wf, err := a.Repo.GetWorkflowDefinition(ctx, record.NotificationWorkflowID, record.Tenant)
	if err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "notification-trigger: getWorkflowDefinition")
	}

	result, dispatchErr := a.Dispatch.Dispatch(ctx, record, wf)
	if dispatchErr == nil {
		_, err := a.Repo.UpdateNotificationStatus(ctx, record.ID, record.Tenant, catalog.StatusSent, catalog.StatusUpdate{
			TransactionID: &result.TransactionID,
			PriorStates:   []catalog.NotificationStatus{catalog.StatusProcessing},
		})
		if err != nil {
			return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "notification-trigger: updateNotificationStatus(SENT)")
		}
		a.publishLifecycleEvent(ctx, events.EventTypeNotificationSent, record, map[string]interface{}{
			"transaction_id": result.TransactionID,
		})
		return nil
	}

	prevRetries := 0
	if record.ErrorDetails != nil {
		prevRetries = record.ErrorDetails.Retries
	}
	class, kind := classifyDispatchError(dispatchErr)
	details := &catalog.ErrorDetails{Kind: kind, Message: dispatchErr.Error(), Retries: prevRetries + 1}

	if _, err := a.Repo.UpdateNotificationStatus(ctx, record.ID, record.Tenant, catalog.StatusFailed, catalog.StatusUpdate{
		ErrorDetails: details,
		PriorStates:  []catalog.NotificationStatus{catalog.StatusProcessing},
	}); err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "notification-trigger: updateNotificationStatus(FAILED)")
	}
	a.publishLifecycleEvent(ctx, events.EventTypeNotificationFailed, record, map[string]interface{}{
		"kind":    details.Kind,
		"message": details.Message,
		"retries": details.Retries,
	})

	switch class {
	case dispatch.ErrorMalformedPayload:
		return engineerrors.New(engineerrors.ErrCodeMalformedPayload, dispatchErr.Error())
	case dispatch.ErrorProviderPermanent:
		return engineerrors.New(engineerrors.ErrCodeProviderPermanent, dispatchErr.Error())
	default:
		return engineerrors.New(engineerrors.ErrCodeProviderTransient, dispatchErr.Error())
	}
}

// publishLifecycleEvent emits a best-effort lifecycle event for a dispatch
// outcome. A publish failure is logged and otherwise ignored — it must never
// affect the activity's own success or retry behavior.
func (a *Activities) publishLifecycleEvent(ctx context.Context, eventType events.EventType, record *catalog.NotificationRecord, data map[string]interface{}) {
	evt := events.NewEvent(eventType, record.Tenant, record.ID, data)
	if err := a.Publisher.Publish(ctx, evt); err != nil {
		a.Log.Error().Err(err).Str("notification_id", record.ID).Str("event_type", string(eventType)).
			Msg("notification-trigger: failed to publish lifecycle event")
	}
}

func classifyDispatchError(err error) (dispatch.ErrorClass, string) {
	var delivErr *dispatch.DeliveryError
	if errors.As(err, &delivErr) {
		return delivErr.Class, delivErr.Class.String()
	}
	return dispatch.ErrorProviderTransient, fmt.Sprintf("%T", err)
}
