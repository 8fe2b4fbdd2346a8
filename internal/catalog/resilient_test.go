package catalog

import (
	"context"
	"errors"
	"testing"

	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

// flakyRepository wraps FakeRepository, letting a test force GetRule to
// fail a fixed number of times before delegating to the embedded fake.
type flakyRepository struct {
	*FakeRepository
	err        error
	failTimes  int
	getRuleHit int
}

func (f *flakyRepository) GetRule(ctx context.Context, id, tenant string) (*NotificationRule, error) {
	f.getRuleHit++
	if f.getRuleHit <= f.failTimes {
		return nil, f.err
	}
	return f.FakeRepository.GetRule(ctx, id, tenant)
}

func TestCircuitBreakerRepositoryPassesThroughOnSuccess(t *testing.T) {
	base := NewFakeRepository()
	base.Rules["r1"] = &NotificationRule{ID: "r1", Tenant: "t1"}
	repo := NewCircuitBreakerRepository(base)

	got, err := repo.GetRule(context.Background(), "r1", "t1")
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got == nil || got.ID != "r1" {
		t.Errorf("GetRule() = %v, want r1", got)
	}
}

func TestCircuitBreakerRepositoryTripsOnRepeatedCatalogUnavailable(t *testing.T) {
	flaky := &flakyRepository{
		FakeRepository: NewFakeRepository(),
		err:            engineerrors.New(engineerrors.ErrCodeCatalogUnavailable, "db down"),
		failTimes:      10,
	}
	repo := NewCircuitBreakerRepository(flaky)

	for i := 0; i < 6; i++ {
		_, _ = repo.GetRule(context.Background(), "r1", "t1")
	}

	if repo.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %q, want open after repeated CatalogUnavailable failures", repo.BreakerState())
	}

	_, err := repo.GetRule(context.Background(), "r1", "t1")
	if !engineerrors.Is(err, engineerrors.ErrCodeCatalogUnavailable) {
		t.Errorf("got %v, want a CatalogUnavailable error while the breaker is open", err)
	}
}

func TestCircuitBreakerRepositoryDoesNotTripOnNotFound(t *testing.T) {
	flaky := &flakyRepository{
		FakeRepository: NewFakeRepository(),
		err:            errors.New("no such rule"),
		failTimes:      20,
	}
	repo := NewCircuitBreakerRepository(flaky)

	for i := 0; i < 10; i++ {
		_, _ = repo.GetRule(context.Background(), "missing", "t1")
	}

	if repo.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed — non-CatalogUnavailable errors must not trip the breaker", repo.BreakerState())
	}
}
