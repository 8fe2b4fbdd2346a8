// Package schedulestore defines the abstract Schedule Store contract (§6.2)
// and wraps a concrete durable-workflow backend behind it, so the Rule
// Reconciliation Loop and Notification Polling Pipeline depend only on this
// interface.
package schedulestore

import (
	"context"
	"time"
)

// ScheduleSpec carries the CRON expression(s) and timezone for a schedule.
type ScheduleSpec struct {
	CronExpressions []string
	Timezone        string
}

// ScheduleAction describes the workflow a fired schedule starts.
type ScheduleAction struct {
	WorkflowType string
	Args         map[string]interface{}
}

// ScheduleState carries the paused flag and any other mutable schedule state.
type ScheduleState struct {
	Paused bool
}

// ScheduleMemo is free-form metadata attached to a schedule for observability.
type ScheduleMemo map[string]interface{}

// Schedule is the Schedule Store's view of a created schedule.
type Schedule struct {
	ID    string
	Spec  ScheduleSpec
	State ScheduleState
	Memo  ScheduleMemo
}

// RetryPolicy configures workflow/activity retry behavior (§4.4).
type RetryPolicy struct {
	InitialInterval time.Duration
	BackoffCoeff    float64
	MaxInterval     time.Duration
	MaxAttempts     int
	// NonRetryableErrors lists error kinds that should not be retried even
	// if attempts remain.
	NonRetryableErrors []string
}

// StartWorkflowOptions configures a single workflow start (§6.2, §4.3 step 5).
type StartWorkflowOptions struct {
	TaskQueue   string
	StartDelay  time.Duration
	RetryPolicy *RetryPolicy
}

// WorkflowExecutionStatus summarizes describeWorkflow's result.
type WorkflowExecutionStatus struct {
	ID        string
	Running   bool
	StartedAt time.Time
}

// Store is the abstract Schedule Store contract the engine consumes.
// Implementations must make CreateSchedule idempotent on (id, spec, action,
// state, memo) so the Rule Reconciliation Loop's full pass is safe to repeat.
type Store interface {
	EnsureNamespace(ctx context.Context, name string) error

	CreateSchedule(ctx context.Context, id string, spec ScheduleSpec, action ScheduleAction, state ScheduleState, memo ScheduleMemo) error
	UpdateSchedule(ctx context.Context, id string, mutate func(*Schedule) error) error
	DeleteSchedule(ctx context.Context, id string) error
	ListSchedules(ctx context.Context, prefix string) ([]*Schedule, error)
	GetSchedule(ctx context.Context, id string) (*Schedule, error)

	StartWorkflow(ctx context.Context, workflowType, id string, args map[string]interface{}, opts StartWorkflowOptions) error
	DescribeWorkflow(ctx context.Context, id string) (*WorkflowExecutionStatus, error)

	// PauseAll suspends activity/workflow task processing on this store's
	// worker without touching any individual CRON schedule (§4.7 — pause()
	// does not pause schedules, only polling/worker workloads).
	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error

	Close(ctx context.Context) error
}

// SchedulePrefix is the deterministic prefix every engine-owned schedule id
// carries, used by ListSchedules to find orphans (§4.2 step 2).
const SchedulePrefix = "rule-"
