// Package workflows declares the two Temporal workflow types the Schedule
// Store drives (§4.4): rule-scheduled, invoked off a CRON schedule, and
// notification-trigger, invoked by the Polling Pipeline. Each workflow is a
// thin wrapper around one Workflow Activity call, carrying the activity
// retry policy the activity itself cannot configure (that lives on the
// workflow-side ActivityOptions, not on the activity function).
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/xnovu/notification-engine/internal/activities"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

// WorkflowTypeRuleScheduled and WorkflowTypeNotificationTrigger are the
// workflow type names both the Rule Reconciliation Loop's schedule actions
// and the Polling Pipeline's StartWorkflow calls reference by string.
const (
	WorkflowTypeRuleScheduled       = "rule-scheduled"
	WorkflowTypeNotificationTrigger = "notification-trigger"
)

// activityStartToCloseTimeout bounds a single activity attempt. It is
// independent of the retry policy's max attempts/interval below.
const activityStartToCloseTimeout = 30 * time.Second

// notificationTriggerRetryPolicy is §4.4's explicit retry table for the
// notification-trigger activity: initial interval 1s, backoff coefficient
// 2, max interval 5 minutes, max attempts 10, with NotFound/Retracted/
// MalformedPayload never retried regardless of attempts remaining.
func notificationTriggerRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    1 * time.Second,
		BackoffCoefficient: 2,
		MaximumInterval:    5 * time.Minute,
		MaximumAttempts:    10,
		NonRetryableErrorTypes: []string{
			string(engineerrors.ErrCodeNotFound),
			string(engineerrors.ErrCodeRetracted),
			string(engineerrors.ErrCodeMalformedPayload),
		},
	}
}

// ruleScheduledRetryPolicy applies the same backoff shape to rule-scheduled
// (§4.4 names no distinct table for it): notification-trigger's interval,
// coefficient and attempt values, with its own non-retryable kinds
// (MissingTenant, RuleNotFound, WorkflowNotFound, NoRecipients).
func ruleScheduledRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    1 * time.Second,
		BackoffCoefficient: 2,
		MaximumInterval:    5 * time.Minute,
		MaximumAttempts:    10,
		NonRetryableErrorTypes: []string{
			string(engineerrors.ErrCodeMissingTenant),
			string(engineerrors.ErrCodeRuleNotFound),
			string(engineerrors.ErrCodeWorkflowNotFound),
			string(engineerrors.ErrCodeNoRecipients),
		},
	}
}

// RuleScheduledWorkflow runs the rule-scheduled activity to materialize a
// Notification Record for a fired CRON schedule.
func RuleScheduledWorkflow(ctx workflow.Context, in activities.RuleScheduledInput) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityStartToCloseTimeout,
		RetryPolicy:         ruleScheduledRetryPolicy(),
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *activities.Activities
	return workflow.ExecuteActivity(ctx, a.RuleScheduled, in).Get(ctx, nil)
}

// NotificationTriggerWorkflow runs the notification-trigger activity to
// dispatch a single Notification Record.
func NotificationTriggerWorkflow(ctx workflow.Context, in activities.NotificationTriggerInput) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityStartToCloseTimeout,
		RetryPolicy:         notificationTriggerRetryPolicy(),
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *activities.Activities
	return workflow.ExecuteActivity(ctx, a.NotificationTrigger, in).Get(ctx, nil)
}

// Register binds both workflow types and the given Activities' two activity
// methods onto w. RegisterActivity on a bound method value derives the
// activity's registered name from the method name ("RuleScheduled",
// "NotificationTrigger"), matching the ExecuteActivity calls above.
func Register(w interface {
	RegisterWorkflow(interface{})
	RegisterActivity(interface{})
}, acts *activities.Activities) {
	w.RegisterWorkflow(RuleScheduledWorkflow)
	w.RegisterWorkflow(NotificationTriggerWorkflow)
	w.RegisterActivity(acts.RuleScheduled)
	w.RegisterActivity(acts.NotificationTrigger)
}
