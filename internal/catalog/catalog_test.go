package catalog

import (
	"context"
	"testing"
	"time"
)

func TestNotificationRuleActive(t *testing.T) {
	wf := &WorkflowDefinition{PublishStatus: PublishPublish, Deactivated: false}

	tests := []struct {
		name string
		rule NotificationRule
		want bool
	}{
		{
			name: "active cron rule with eligible workflow",
			rule: NotificationRule{
				PublishStatus: PublishPublish,
				TriggerType:   TriggerCron,
				TriggerConfig: &CronTrigger{Cron: "0 9 * * MON"},
				Workflow:      wf,
			},
			want: true,
		},
		{
			name: "deactivated rule",
			rule: NotificationRule{
				PublishStatus: PublishPublish,
				Deactivated:   true,
				TriggerType:   TriggerCron,
				TriggerConfig: &CronTrigger{Cron: "0 9 * * MON"},
				Workflow:      wf,
			},
			want: false,
		},
		{
			name: "draft rule",
			rule: NotificationRule{
				PublishStatus: PublishDraft,
				TriggerType:   TriggerCron,
				TriggerConfig: &CronTrigger{Cron: "0 9 * * MON"},
				Workflow:      wf,
			},
			want: false,
		},
		{
			name: "nil trigger config",
			rule: NotificationRule{
				PublishStatus: PublishPublish,
				TriggerType:   TriggerCron,
				Workflow:      wf,
			},
			want: false,
		},
		{
			name: "non-cron trigger type",
			rule: NotificationRule{
				PublishStatus: PublishPublish,
				TriggerType:   "EVENT",
				TriggerConfig: &CronTrigger{Cron: "0 9 * * MON"},
				Workflow:      wf,
			},
			want: false,
		},
		{
			name: "workflow not eligible",
			rule: NotificationRule{
				PublishStatus: PublishPublish,
				TriggerType:   TriggerCron,
				TriggerConfig: &CronTrigger{Cron: "0 9 * * MON"},
				Workflow:      &WorkflowDefinition{PublishStatus: PublishDraft},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleID(t *testing.T) {
	tests := []struct {
		rule NotificationRule
		want string
	}{
		{NotificationRule{ID: "r1", Tenant: "t1"}, "rule-r1-t1"},
		{NotificationRule{ID: "r2", Tenant: ""}, "rule-r2-null"},
	}
	for _, tt := range tests {
		if got := tt.rule.ScheduleID(); got != tt.want {
			t.Errorf("ScheduleID() = %q, want %q", got, tt.want)
		}
	}
}

func TestDispatchableNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		rec  NotificationRecord
		want bool
	}{
		{"immediate pending", NotificationRecord{PublishStatus: PublishPublish, NotificationStatus: StatusPending}, true},
		{"scheduled exactly now", NotificationRecord{PublishStatus: PublishPublish, NotificationStatus: StatusPending, ScheduledFor: &now}, true},
		{"scheduled in past", NotificationRecord{PublishStatus: PublishPublish, NotificationStatus: StatusPending, ScheduledFor: &past}, true},
		{"scheduled in future", NotificationRecord{PublishStatus: PublishPublish, NotificationStatus: StatusPending, ScheduledFor: &future}, false},
		{"not pending", NotificationRecord{PublishStatus: PublishPublish, NotificationStatus: StatusProcessing}, false},
		{"deactivated", NotificationRecord{PublishStatus: PublishPublish, NotificationStatus: StatusPending, Deactivated: true}, false},
		{"not published", NotificationRecord{PublishStatus: PublishDraft, NotificationStatus: StatusPending}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.DispatchableNow(now); got != tt.want {
				t.Errorf("DispatchableNow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFakeRepositoryUpdateNotificationStatusExactlyOnce(t *testing.T) {
	repo := NewFakeRepository()
	ctx := context.Background()

	rec, err := repo.CreateNotification(ctx, &NotificationRecord{
		Tenant:     "t1",
		Recipients: []string{"u1"},
	})
	if err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}

	ok1, err := repo.UpdateNotificationStatus(ctx, rec.ID, "t1", StatusProcessing, StatusUpdate{PriorStates: []NotificationStatus{StatusPending}})
	if err != nil {
		t.Fatalf("first UpdateNotificationStatus() error = %v", err)
	}
	ok2, err := repo.UpdateNotificationStatus(ctx, rec.ID, "t1", StatusProcessing, StatusUpdate{PriorStates: []NotificationStatus{StatusPending}})
	if err != nil {
		t.Fatalf("second UpdateNotificationStatus() error = %v", err)
	}

	if !ok1 || ok2 {
		t.Errorf("expected exactly one caller to win admission, got first=%v second=%v", ok1, ok2)
	}
}

func TestFakeRepositoryCreateNotificationRequiresRecipients(t *testing.T) {
	repo := NewFakeRepository()
	_, err := repo.CreateNotification(context.Background(), &NotificationRecord{Tenant: "t1"})
	if err == nil {
		t.Error("expected error for empty recipients")
	}
}

func TestFakeRepositoryPollNotificationsOrderingAndBatchSize(t *testing.T) {
	repo := NewFakeRepository()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := &NotificationRecord{
			ID:                 "n" + string(rune('a'+i)),
			Tenant:             "t1",
			Recipients:         []string{"u1"},
			PublishStatus:      PublishPublish,
			NotificationStatus: StatusPending,
		}
		repo.Notifications[rec.ID] = rec
		rec.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		rec.CreatedAt = rec.UpdatedAt
	}

	got, err := repo.PollNotifications(ctx, PollOptions{Tenant: "t1", BatchSize: 3})
	if err != nil {
		t.Fatalf("PollNotifications() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i := 0; i < len(got)-1; i++ {
		if got[i].UpdatedAt.After(got[i+1].UpdatedAt) {
			t.Errorf("records not sorted by updated_at ascending")
		}
	}
}
