package schedulestore

import (
	"context"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/xnovu/notification-engine/pkg/config"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/logger"
)

// TemporalStore implements Store against go.temporal.io/sdk. CreateSchedule/
// UpdateSchedule/DeleteSchedule/ListSchedules/GetSchedule map to the SDK's
// schedule client; StartWorkflow/DescribeWorkflow map to the workflow client.
type TemporalStore struct {
	client        client.Client
	scheduleClient client.ScheduleClient
	worker        worker.Worker
	cfg           *config.ScheduleStoreConfig
	log           *logger.Logger
	paused        bool
}

// NewTemporalStore dials the Schedule Store and returns a Store wrapping it.
// Temporal's Cloud/self-hosted namespace provisioning is an operational
// concern outside this client's scope: EnsureNamespace creates nothing and
// reports nothing; it logs a warning when its DescribeNamespace call fails
// and always returns nil.
func NewTemporalStore(cfg *config.ScheduleStoreConfig, log *logger.Logger) (*TemporalStore, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, engineerrors.ErrScheduleStoreUnavailable(err)
	}

	return &TemporalStore{
		client:         c,
		scheduleClient: c.ScheduleClient(),
		cfg:            cfg,
		log:            log,
	}, nil
}

// RegisterWorker starts a worker.Worker bound to the configured task queue,
// registering both workflow types and their activities (§10.6). The caller
// supplies the registration function so this package has no compile-time
// dependency on internal/activities (avoiding an import cycle: activities
// depends on catalog/dispatch, not on schedulestore).
func (s *TemporalStore) RegisterWorker(register func(worker.Worker)) error {
	w := worker.New(s.client, s.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: s.cfg.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: s.cfg.MaxConcurrentWorkflows,
	})
	register(w)
	s.worker = w
	return w.Start()
}

func (s *TemporalStore) EnsureNamespace(ctx context.Context, name string) error {
	_, err := s.client.WorkflowService().DescribeNamespace(ctx, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("namespace", name).Msg("namespace describe failed, assuming auto-creation is configured")
	}
	return nil
}

func (s *TemporalStore) CreateSchedule(ctx context.Context, id string, spec ScheduleSpec, action ScheduleAction, state ScheduleState, memo ScheduleMemo) error {
	_, err := s.scheduleClient.Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			CronExpressions: spec.CronExpressions,
			TimeZoneName:    spec.Timezone,
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        id + "-run",
			Workflow:  action.WorkflowType,
			Args:      []interface{}{action.Args},
			TaskQueue: s.cfg.TaskQueue,
		},
		Paused: state.Paused,
		Memo:   memo,
	})
	if err != nil {
		if isAlreadyExists(err) {
			return s.UpdateSchedule(ctx, id, func(sch *Schedule) error {
				sch.Spec, sch.State, sch.Memo = spec, state, memo
				return nil
			})
		}
		return engineerrors.ErrScheduleStoreUnavailable(err)
	}
	return nil
}

func (s *TemporalStore) UpdateSchedule(ctx context.Context, id string, mutate func(*Schedule) error) error {
	handle := s.scheduleClient.GetHandle(ctx, id)
	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			current := &Schedule{
				ID: id,
				Spec: ScheduleSpec{
					CronExpressions: input.Description.Schedule.Spec.CronExpressions,
					Timezone:        input.Description.Schedule.Spec.TimeZoneName,
				},
				State: ScheduleState{Paused: input.Description.Schedule.State.Paused},
			}
			if err := mutate(current); err != nil {
				return nil, err
			}
			input.Description.Schedule.Spec.CronExpressions = current.Spec.CronExpressions
			input.Description.Schedule.Spec.TimeZoneName = current.Spec.Timezone
			input.Description.Schedule.State.Paused = current.State.Paused
			return &client.ScheduleUpdate{Schedule: &input.Description.Schedule}, nil
		},
	})
	if err != nil {
		if isNotFound(err) {
			return engineerrors.New(engineerrors.ErrCodeScheduleStoreNotFound, "schedule not found: "+id)
		}
		return engineerrors.ErrScheduleStoreUnavailable(err)
	}
	return nil
}

func (s *TemporalStore) DeleteSchedule(ctx context.Context, id string) error {
	handle := s.scheduleClient.GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		if isNotFound(err) {
			return engineerrors.New(engineerrors.ErrCodeScheduleStoreNotFound, "schedule not found: "+id)
		}
		return engineerrors.ErrScheduleStoreUnavailable(err)
	}
	return nil
}

func (s *TemporalStore) ListSchedules(ctx context.Context, prefix string) ([]*Schedule, error) {
	iter, err := s.scheduleClient.List(ctx, client.ScheduleListOptions{})
	if err != nil {
		return nil, engineerrors.ErrScheduleStoreUnavailable(err)
	}

	var out []*Schedule
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, engineerrors.ErrScheduleStoreUnavailable(err)
		}
		if prefix != "" && !hasPrefix(entry.ID, prefix) {
			continue
		}
		out = append(out, &Schedule{ID: entry.ID})
	}
	return out, nil
}

func (s *TemporalStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	handle := s.scheduleClient.GetHandle(ctx, id)
	desc, err := handle.Describe(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, engineerrors.ErrScheduleStoreUnavailable(err)
	}
	return &Schedule{
		ID: id,
		Spec: ScheduleSpec{
			CronExpressions: desc.Schedule.Spec.CronExpressions,
			Timezone:        desc.Schedule.Spec.TimeZoneName,
		},
		State: ScheduleState{Paused: desc.Schedule.State.Paused},
		Memo:  desc.Memo,
	}, nil
}

func (s *TemporalStore) StartWorkflow(ctx context.Context, workflowType, id string, args map[string]interface{}, opts StartWorkflowOptions) error {
	wopts := client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: opts.TaskQueue,
	}
	if opts.StartDelay > 0 {
		wopts.StartDelay = opts.StartDelay
	}
	if opts.RetryPolicy != nil {
		wopts.RetryPolicy = &temporalRetryPolicy{policy: opts.RetryPolicy}.toSDK()
	}

	_, err := s.client.ExecuteWorkflow(ctx, wopts, workflowType, args)
	if err != nil {
		return engineerrors.ErrScheduleStoreUnavailable(err)
	}
	return nil
}

func (s *TemporalStore) DescribeWorkflow(ctx context.Context, id string) (*WorkflowExecutionStatus, error) {
	resp, err := s.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, engineerrors.ErrScheduleStoreUnavailable(err)
	}
	info := resp.WorkflowExecutionInfo
	return &WorkflowExecutionStatus{
		ID:        id,
		Running:   info.GetCloseTime() == nil,
		StartedAt: info.GetStartTime().AsTime(),
	}, nil
}

func (s *TemporalStore) PauseAll(ctx context.Context) error {
	if s.worker != nil {
		s.worker.Stop()
	}
	s.paused = true
	return nil
}

func (s *TemporalStore) ResumeAll(ctx context.Context) error {
	if s.worker != nil {
		if err := s.worker.Start(); err != nil {
			return engineerrors.ErrScheduleStoreUnavailable(err)
		}
	}
	s.paused = false
	return nil
}

func (s *TemporalStore) Close(ctx context.Context) error {
	if s.worker != nil {
		s.worker.Stop()
	}
	s.client.Close()
	return nil
}

type temporalRetryPolicy struct {
	policy *RetryPolicy
}

func (t temporalRetryPolicy) toSDK() client.RetryPolicy {
	return client.RetryPolicy{
		InitialInterval:    t.policy.InitialInterval,
		BackoffCoefficient: t.policy.BackoffCoeff,
		MaximumInterval:    t.policy.MaxInterval,
		MaximumAttempts:    int32(t.policy.MaxAttempts),
		NonRetryableErrorTypes: t.policy.NonRetryableErrors,
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func isNotFound(err error) bool {
	_, ok := err.(interface{ NotFound() bool })
	if ok {
		return true
	}
	return err != nil && containsFold(err.Error(), "not found")
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return containsFold(err.Error(), "already exists") || containsFold(err.Error(), "AlreadyExists")
}

func containsFold(s, substr string) bool {
	sl, subl := len(s), len(substr)
	if subl == 0 {
		return true
	}
	for i := 0; i+subl <= sl; i++ {
		if equalFold(s[i:i+subl], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
