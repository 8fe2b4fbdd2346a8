package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/xnovu/notification-engine/internal/resilience"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

// CircuitBreakerRepository wraps a Repository with a circuit breaker over
// the Catalog DB connection (SPEC_FULL §7/§4.4: the catalog DB is one of
// the two dependencies the engine's circuit breaker protects, alongside
// the Delivery Provider client in internal/dispatch). Every call is run
// through the breaker; a run of CatalogUnavailable failures trips it, and
// further calls fail fast with CatalogUnavailable instead of adding load
// to an already-unreachable database.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *resilience.CircuitBreaker
}

// NewCircuitBreakerRepository wraps repo with a breaker named "catalog-db".
func NewCircuitBreakerRepository(repo Repository) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("catalog-db")),
	}
}

// isCatalogSuccess treats only CatalogUnavailable as a breaker-tripping
// failure; a NotFound or Validation error means the DB answered fine.
func isCatalogSuccess(err error) bool {
	return !engineerrors.Is(err, engineerrors.ErrCodeCatalogUnavailable)
}

func (r *CircuitBreakerRepository) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	err := r.cb.ExecuteWithContext(ctx, isCatalogSuccess, fn)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "catalog-db circuit breaker open")
	}
	return err
}

func (r *CircuitBreakerRepository) GetActiveCronRules(ctx context.Context, tenant string) ([]*NotificationRule, error) {
	var out []*NotificationRule
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.GetActiveCronRules(ctx, tenant)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) GetRule(ctx context.Context, id, tenant string) (*NotificationRule, error) {
	var out *NotificationRule
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.GetRule(ctx, id, tenant)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) GetWorkflowDefinition(ctx context.Context, id, tenant string) (*WorkflowDefinition, error) {
	var out *WorkflowDefinition
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.GetWorkflowDefinition(ctx, id, tenant)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) PollNotifications(ctx context.Context, opts PollOptions) ([]*NotificationRecord, error) {
	var out []*NotificationRecord
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.PollNotifications(ctx, opts)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) GetNotification(ctx context.Context, id, tenant string) (*NotificationRecord, error) {
	var out *NotificationRecord
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.GetNotification(ctx, id, tenant)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) GetNotificationByID(ctx context.Context, id string) (*NotificationRecord, error) {
	var out *NotificationRecord
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.GetNotificationByID(ctx, id)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) CreateNotification(ctx context.Context, record *NotificationRecord) (*NotificationRecord, error) {
	var out *NotificationRecord
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.CreateNotification(ctx, record)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) UpdateNotificationStatus(ctx context.Context, id, tenant string, newStatus NotificationStatus, update StatusUpdate) (bool, error) {
	var out bool
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.UpdateNotificationStatus(ctx, id, tenant, newStatus, update)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) GetLastRuleUpdate(ctx context.Context, tenant string) (time.Time, error) {
	var out time.Time
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.GetLastRuleUpdate(ctx, tenant)
		return innerErr
	})
	return out, err
}

func (r *CircuitBreakerRepository) GetTemplate(ctx context.Context, key, tenant string) (*Template, error) {
	var out *Template
	err := r.guard(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.repo.GetTemplate(ctx, key, tenant)
		return innerErr
	})
	return out, err
}

// Shutdown is not run through the breaker: it must always reach the
// underlying repository so the connection pool is released on exit.
func (r *CircuitBreakerRepository) Shutdown(ctx context.Context) error {
	return r.repo.Shutdown(ctx)
}

// BreakerState reports the catalog-db breaker's current state, surfaced on
// the Engine Controller's status endpoint.
func (r *CircuitBreakerRepository) BreakerState() string {
	return r.cb.State().String()
}
