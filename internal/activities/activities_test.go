package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/dispatch"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/events"
	"github.com/xnovu/notification-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json", TimeFormat: "2006-01-02T15:04:05Z07:00"})
}

// fakePublisher records every published event. PublishErr, when set, is
// returned from Publish without recording the event.
type fakePublisher struct {
	events     []*events.Event
	PublishErr error
}

func (p *fakePublisher) Publish(_ context.Context, e *events.Event) error {
	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func seedRule(repo *catalog.FakeRepository, id, tenant string, active bool) *catalog.NotificationRule {
	wf := &catalog.WorkflowDefinition{
		ID:              "wf-" + id,
		WorkflowKey:     "welcome",
		DefaultChannels: []catalog.Channel{catalog.ChannelEmail},
		PublishStatus:   catalog.PublishPublish,
	}
	repo.Workflows[wf.ID] = wf

	rule := &catalog.NotificationRule{
		ID:                     id,
		Tenant:                 tenant,
		Name:                   "Weekly digest",
		NotificationWorkflowID: wf.ID,
		TriggerType:            catalog.TriggerCron,
		TriggerConfig:          &catalog.CronTrigger{Cron: "0 9 * * MON"},
		PublishStatus:          catalog.PublishPublish,
		Deactivated:            !active,
		Workflow:               wf,
	}
	repo.Rules[id] = rule
	return rule
}

func TestRuleScheduledCreatesNotification(t *testing.T) {
	repo := catalog.NewFakeRepository()
	seedRule(repo, "r1", "t1", true)
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger())

	err := acts.RuleScheduled(context.Background(), RuleScheduledInput{
		RuleID:      "r1",
		Tenant:      "t1",
		WorkflowID:  "wf-r1",
		RulePayload: map[string]interface{}{"recipient": "u1"},
	})
	if err != nil {
		t.Fatalf("RuleScheduled() error = %v", err)
	}

	if len(repo.Notifications) != 1 {
		t.Fatalf("expected 1 notification created, got %d", len(repo.Notifications))
	}
	for _, n := range repo.Notifications {
		if n.NotificationStatus != catalog.StatusPending {
			t.Errorf("NotificationStatus = %v, want PENDING", n.NotificationStatus)
		}
		if len(n.Recipients) != 1 || n.Recipients[0] != "u1" {
			t.Errorf("Recipients = %v, want [u1]", n.Recipients)
		}
	}
}

func TestRuleScheduledMissingTenant(t *testing.T) {
	repo := catalog.NewFakeRepository()
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger())

	err := acts.RuleScheduled(context.Background(), RuleScheduledInput{RuleID: "r1"})
	var appErr *engineerrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != engineerrors.ErrCodeMissingTenant {
		t.Fatalf("expected MissingTenant, got %v", err)
	}
}

func TestRuleScheduledSkipsInactiveRule(t *testing.T) {
	repo := catalog.NewFakeRepository()
	seedRule(repo, "r1", "t1", false)
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger())

	err := acts.RuleScheduled(context.Background(), RuleScheduledInput{RuleID: "r1", Tenant: "t1", RulePayload: map[string]interface{}{"recipient": "u1"}})
	if err != nil {
		t.Fatalf("RuleScheduled() error = %v", err)
	}
	if len(repo.Notifications) != 0 {
		t.Error("expected no notification for an inactive rule")
	}
}

func TestRuleScheduledNoRecipients(t *testing.T) {
	repo := catalog.NewFakeRepository()
	seedRule(repo, "r1", "t1", true)
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger())

	err := acts.RuleScheduled(context.Background(), RuleScheduledInput{RuleID: "r1", Tenant: "t1", RulePayload: map[string]interface{}{}})
	var appErr *engineerrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != engineerrors.ErrCodeNoRecipients {
		t.Fatalf("expected NoRecipients, got %v", err)
	}
}

func TestNotificationTriggerDispatchesAndMarksSent(t *testing.T) {
	repo := catalog.NewFakeRepository()
	provider := dispatch.NewFakeProvider()
	acts := NewActivities(repo, dispatch.NewAdapter(provider, nil), testLogger())

	rec, err := repo.CreateNotification(context.Background(), &catalog.NotificationRecord{
		Tenant:             "t1",
		Recipients:         []string{"u1"},
		PublishStatus:      catalog.PublishPublish,
		NotificationStatus: catalog.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}
	ok, err := repo.UpdateNotificationStatus(context.Background(), rec.ID, "t1", catalog.StatusProcessing, catalog.StatusUpdate{
		PriorStates: []catalog.NotificationStatus{catalog.StatusPending},
	})
	if err != nil || !ok {
		t.Fatalf("seed UpdateNotificationStatus() ok=%v err=%v", ok, err)
	}

	if err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: rec.ID}); err != nil {
		t.Fatalf("NotificationTrigger() error = %v", err)
	}

	got := repo.Notifications[rec.ID]
	if got.NotificationStatus != catalog.StatusSent {
		t.Errorf("NotificationStatus = %v, want SENT", got.NotificationStatus)
	}
	if got.TransactionID == nil || *got.TransactionID != "fake-txn" {
		t.Errorf("TransactionID = %v, want fake-txn", got.TransactionID)
	}
}

func TestNotificationTriggerNotFound(t *testing.T) {
	repo := catalog.NewFakeRepository()
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger())

	err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: "missing"})
	var appErr *engineerrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != engineerrors.ErrCodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestNotificationTriggerSkipsWhenNotProcessing(t *testing.T) {
	repo := catalog.NewFakeRepository()
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger())

	rec, _ := repo.CreateNotification(context.Background(), &catalog.NotificationRecord{
		Tenant: "t1", Recipients: []string{"u1"}, PublishStatus: catalog.PublishPublish, NotificationStatus: catalog.StatusPending,
	})

	if err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: rec.ID}); err != nil {
		t.Fatalf("NotificationTrigger() error = %v", err)
	}
	if repo.Notifications[rec.ID].NotificationStatus != catalog.StatusPending {
		t.Error("expected status to remain unchanged when not PROCESSING")
	}
}

func TestNotificationTriggerRetracts(t *testing.T) {
	repo := catalog.NewFakeRepository()
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger())

	rec, _ := repo.CreateNotification(context.Background(), &catalog.NotificationRecord{
		Tenant: "t1", Recipients: []string{"u1"}, PublishStatus: catalog.PublishPublish, NotificationStatus: catalog.StatusPending,
	})
	repo.UpdateNotificationStatus(context.Background(), rec.ID, "t1", catalog.StatusProcessing, catalog.StatusUpdate{
		PriorStates: []catalog.NotificationStatus{catalog.StatusPending},
	})
	repo.Notifications[rec.ID].Deactivated = true

	err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: rec.ID})
	var appErr *engineerrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != engineerrors.ErrCodeRetracted {
		t.Fatalf("expected Retracted, got %v", err)
	}
	if repo.Notifications[rec.ID].NotificationStatus != catalog.StatusRetracted {
		t.Errorf("NotificationStatus = %v, want RETRACTED", repo.Notifications[rec.ID].NotificationStatus)
	}
}

func TestNotificationTriggerMarksFailedOnProviderError(t *testing.T) {
	repo := catalog.NewFakeRepository()
	provider := dispatch.NewFakeProvider()
	provider.Err = &dispatch.DeliveryError{Class: dispatch.ErrorProviderTransient, Err: errors.New("boom")}
	acts := NewActivities(repo, dispatch.NewAdapter(provider, nil), testLogger())

	rec, _ := repo.CreateNotification(context.Background(), &catalog.NotificationRecord{
		Tenant: "t1", Recipients: []string{"u1"}, PublishStatus: catalog.PublishPublish, NotificationStatus: catalog.StatusPending,
	})
	repo.UpdateNotificationStatus(context.Background(), rec.ID, "t1", catalog.StatusProcessing, catalog.StatusUpdate{
		PriorStates: []catalog.NotificationStatus{catalog.StatusPending},
	})

	err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: rec.ID})
	var appErr *engineerrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != engineerrors.ErrCodeProviderTransient {
		t.Fatalf("expected ProviderTransient, got %v", err)
	}
	got := repo.Notifications[rec.ID]
	if got.NotificationStatus != catalog.StatusFailed {
		t.Errorf("NotificationStatus = %v, want FAILED", got.NotificationStatus)
	}
	if got.ErrorDetails == nil || got.ErrorDetails.Retries != 1 {
		t.Errorf("ErrorDetails = %+v, want Retries=1", got.ErrorDetails)
	}
}

func TestNotificationTriggerPublishesSentEvent(t *testing.T) {
	repo := catalog.NewFakeRepository()
	pub := &fakePublisher{}
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger()).WithPublisher(pub)

	rec, _ := repo.CreateNotification(context.Background(), &catalog.NotificationRecord{
		Tenant: "t1", Recipients: []string{"u1"}, PublishStatus: catalog.PublishPublish, NotificationStatus: catalog.StatusPending,
	})
	repo.UpdateNotificationStatus(context.Background(), rec.ID, "t1", catalog.StatusProcessing, catalog.StatusUpdate{
		PriorStates: []catalog.NotificationStatus{catalog.StatusPending},
	})

	if err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: rec.ID}); err != nil {
		t.Fatalf("NotificationTrigger() error = %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
	evt := pub.events[0]
	if evt.Type != events.EventTypeNotificationSent || evt.TenantID != "t1" || evt.AggregateID != rec.ID {
		t.Errorf("event = %+v, want sent event for tenant t1 notification %s", evt, rec.ID)
	}
	if evt.Data["transaction_id"] != "fake-txn" {
		t.Errorf("event data transaction_id = %v, want fake-txn", evt.Data["transaction_id"])
	}
}

func TestNotificationTriggerPublishesFailedEvent(t *testing.T) {
	repo := catalog.NewFakeRepository()
	provider := dispatch.NewFakeProvider()
	provider.Err = &dispatch.DeliveryError{Class: dispatch.ErrorProviderTransient, Err: errors.New("boom")}
	pub := &fakePublisher{}
	acts := NewActivities(repo, dispatch.NewAdapter(provider, nil), testLogger()).WithPublisher(pub)

	rec, _ := repo.CreateNotification(context.Background(), &catalog.NotificationRecord{
		Tenant: "t1", Recipients: []string{"u1"}, PublishStatus: catalog.PublishPublish, NotificationStatus: catalog.StatusPending,
	})
	repo.UpdateNotificationStatus(context.Background(), rec.ID, "t1", catalog.StatusProcessing, catalog.StatusUpdate{
		PriorStates: []catalog.NotificationStatus{catalog.StatusPending},
	})

	if err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: rec.ID}); err == nil {
		t.Fatal("expected an error from a failed dispatch")
	}

	if len(pub.events) != 1 || pub.events[0].Type != events.EventTypeNotificationFailed {
		t.Fatalf("expected 1 failed event, got %+v", pub.events)
	}
}

func TestNotificationTriggerIgnoresPublishFailure(t *testing.T) {
	repo := catalog.NewFakeRepository()
	pub := &fakePublisher{PublishErr: errors.New("broker unreachable")}
	acts := NewActivities(repo, dispatch.NewAdapter(dispatch.NewFakeProvider(), nil), testLogger()).WithPublisher(pub)

	rec, _ := repo.CreateNotification(context.Background(), &catalog.NotificationRecord{
		Tenant: "t1", Recipients: []string{"u1"}, PublishStatus: catalog.PublishPublish, NotificationStatus: catalog.StatusPending,
	})
	repo.UpdateNotificationStatus(context.Background(), rec.ID, "t1", catalog.StatusProcessing, catalog.StatusUpdate{
		PriorStates: []catalog.NotificationStatus{catalog.StatusPending},
	})

	if err := acts.NotificationTrigger(context.Background(), NotificationTriggerInput{NotificationID: rec.ID}); err != nil {
		t.Fatalf("NotificationTrigger() error = %v, want nil despite a broken event publisher", err)
	}
	if repo.Notifications[rec.ID].NotificationStatus != catalog.StatusSent {
		t.Errorf("NotificationStatus = %v, want SENT even though publishing failed", repo.Notifications[rec.ID].NotificationStatus)
	}
}
