package workflows

import (
	"testing"
	"time"

	"github.com/xnovu/notification-engine/internal/activities"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

type fakeWorker struct {
	workflows  []interface{}
	activities []interface{}
}

func (f *fakeWorker) RegisterWorkflow(w interface{}) { f.workflows = append(f.workflows, w) }
func (f *fakeWorker) RegisterActivity(a interface{}) { f.activities = append(f.activities, a) }

func TestRegisterBindsBothWorkflowsAndActivities(t *testing.T) {
	acts := activities.NewActivities(nil, nil, nil)
	w := &fakeWorker{}

	Register(w, acts)

	if len(w.workflows) != 2 {
		t.Fatalf("registered %d workflows, want 2", len(w.workflows))
	}
	if len(w.activities) != 2 {
		t.Fatalf("registered %d activities, want 2", len(w.activities))
	}
}

func TestNotificationTriggerRetryPolicyMatchesSpecTable(t *testing.T) {
	p := notificationTriggerRetryPolicy()

	if p.InitialInterval != 1*time.Second {
		t.Errorf("InitialInterval = %v, want 1s", p.InitialInterval)
	}
	if p.BackoffCoefficient != 2 {
		t.Errorf("BackoffCoefficient = %v, want 2", p.BackoffCoefficient)
	}
	if p.MaximumInterval != 5*time.Minute {
		t.Errorf("MaximumInterval = %v, want 5m", p.MaximumInterval)
	}
	if p.MaximumAttempts != 10 {
		t.Errorf("MaximumAttempts = %v, want 10", p.MaximumAttempts)
	}

	want := map[string]bool{
		string(engineerrors.ErrCodeNotFound):         true,
		string(engineerrors.ErrCodeRetracted):        true,
		string(engineerrors.ErrCodeMalformedPayload): true,
	}
	if len(p.NonRetryableErrorTypes) != len(want) {
		t.Fatalf("NonRetryableErrorTypes = %v, want exactly %v", p.NonRetryableErrorTypes, want)
	}
	for _, kind := range p.NonRetryableErrorTypes {
		if !want[kind] {
			t.Errorf("unexpected non-retryable kind %q", kind)
		}
	}
}
