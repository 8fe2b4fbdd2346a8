package schedulestore

import (
	"context"
	"strings"
	"sync"

	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

// FakeStore is an in-memory Store used by unit tests across the engine. It
// mirrors TemporalStore's idempotent-create semantics without a live
// connection.
type FakeStore struct {
	mu        sync.Mutex
	schedules map[string]*Schedule
	workflows map[string]*WorkflowExecutionStatus
	paused    bool

	// StartWorkflowErr, when set, is returned by every StartWorkflow call.
	StartWorkflowErr error
}

// NewFakeStore returns an empty fake schedule store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		schedules: make(map[string]*Schedule),
		workflows: make(map[string]*WorkflowExecutionStatus),
	}
}

func (f *FakeStore) EnsureNamespace(ctx context.Context, name string) error { return nil }

func (f *FakeStore) CreateSchedule(ctx context.Context, id string, spec ScheduleSpec, action ScheduleAction, state ScheduleState, memo ScheduleMemo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.schedules[id]; ok {
		existing.Spec, existing.State, existing.Memo = spec, state, memo
		return nil
	}
	f.schedules[id] = &Schedule{ID: id, Spec: spec, State: state, Memo: memo}
	return nil
}

func (f *FakeStore) UpdateSchedule(ctx context.Context, id string, mutate func(*Schedule) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sch, ok := f.schedules[id]
	if !ok {
		return engineerrors.New(engineerrors.ErrCodeScheduleStoreNotFound, "schedule not found: "+id)
	}
	return mutate(sch)
}

func (f *FakeStore) DeleteSchedule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.schedules[id]; !ok {
		return engineerrors.New(engineerrors.ErrCodeScheduleStoreNotFound, "schedule not found: "+id)
	}
	delete(f.schedules, id)
	return nil
}

func (f *FakeStore) ListSchedules(ctx context.Context, prefix string) ([]*Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Schedule
	for id, sch := range f.schedules {
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		out = append(out, sch)
	}
	return out, nil
}

func (f *FakeStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.schedules[id], nil
}

func (f *FakeStore) StartWorkflow(ctx context.Context, workflowType, id string, args map[string]interface{}, opts StartWorkflowOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StartWorkflowErr != nil {
		return f.StartWorkflowErr
	}
	f.workflows[id] = &WorkflowExecutionStatus{ID: id, Running: true}
	return nil
}

func (f *FakeStore) DescribeWorkflow(ctx context.Context, id string) (*WorkflowExecutionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.workflows[id], nil
}

func (f *FakeStore) PauseAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paused = true
	return nil
}

func (f *FakeStore) ResumeAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paused = false
	return nil
}

func (f *FakeStore) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.paused
}

func (f *FakeStore) Close(ctx context.Context) error { return nil }
