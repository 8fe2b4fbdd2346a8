//go:build wireinject
// +build wireinject

// Package enginewire wires the Engine Controller's constructor graph:
// Catalog repository → Template Engine → Dispatch Adapter → Workflow
// Activities → Polling Pipeline / Rule Reconciliation → Controller.
package enginewire

import (
	"github.com/google/wire"

	"github.com/xnovu/notification-engine/internal/activities"
	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/dispatch"
	"github.com/xnovu/notification-engine/internal/engine"
	"github.com/xnovu/notification-engine/internal/polling"
	"github.com/xnovu/notification-engine/internal/reconciler"
	"github.com/xnovu/notification-engine/internal/schedulestore"
	"github.com/xnovu/notification-engine/internal/template"
	"github.com/xnovu/notification-engine/pkg/config"
	"github.com/xnovu/notification-engine/pkg/database"
	"github.com/xnovu/notification-engine/pkg/events"
	"github.com/xnovu/notification-engine/pkg/logger"
)

// ProviderSet is the wire provider set for the Engine Controller.
var ProviderSet = wire.NewSet(
	ProvideRepository,
	ProvideScheduleStore,
	ProvideTemplateSource,
	ProvideTemplateCache,
	ProvideDeliveryProvider,
	ProvideDispatchAdapter,
	ProvideEventPublisher,
	ProvideActivities,
	ProvideReconciler,
	ProvidePoller,
	ProvideController,
)

// ProvideRepository provides the Catalog Repository over a PostgreSQL pool,
// wrapped in a circuit breaker (SPEC_FULL §7) so a downed database fails
// fast instead of piling up slow timeouts across every loop tick.
func ProvideRepository(db *database.PostgresDB) catalog.Repository {
	return catalog.NewCircuitBreakerRepository(catalog.NewPostgresRepository(db))
}

// ProvideScheduleStore dials the Schedule Store.
func ProvideScheduleStore(cfg *config.Config, log *logger.Logger) (schedulestore.Store, error) {
	return schedulestore.NewTemporalStore(&cfg.ScheduleStore, log)
}

// ProvideTemplateSource adapts the Catalog Repository as a template.Source.
func ProvideTemplateSource(repo catalog.Repository) template.Source {
	return template.NewCatalogSource(repo)
}

// ProvideTemplateCache wraps the template source in the render cache.
func ProvideTemplateCache(source template.Source) *template.Cache {
	return template.NewCache(source)
}

// ProvideDeliveryProvider constructs the HTTP Delivery Provider client,
// wrapped in a circuit breaker (SPEC_FULL §7) so a downed provider fails
// fast instead of every dispatch blocking on its own timeout.
func ProvideDeliveryProvider(cfg *config.Config) dispatch.DeliveryProvider {
	return dispatch.NewCircuitBreakerProvider(dispatch.NewHTTPProvider(cfg.Delivery))
}

// ProvideDispatchAdapter wires the Dispatch Adapter over the Delivery
// Provider and the Template Engine's render cache, so channel-specific
// override content is rendered and sanitized before it reaches the
// Delivery Provider (§2, §4.5, §4.6).
func ProvideDispatchAdapter(provider dispatch.DeliveryProvider, cache *template.Cache) *dispatch.Adapter {
	return dispatch.NewAdapter(provider, cache)
}

// ProvideEventPublisher dials the optional RabbitMQ lifecycle event bus. An
// empty URL means lifecycle events are not published; events.NoopPublisher{}
// is used instead and dispatch proceeds exactly as if the bus were healthy.
func ProvideEventPublisher(cfg *config.Config, log *logger.Logger) (events.Publisher, error) {
	if cfg.EventBus.URL == "" {
		return events.NoopPublisher{}, nil
	}
	return events.NewRabbitMQEventBus(&cfg.EventBus, log)
}

// ProvideActivities wires the Workflow Activities.
func ProvideActivities(repo catalog.Repository, adapter *dispatch.Adapter, log *logger.Logger, publisher events.Publisher) *activities.Activities {
	return activities.NewActivities(repo, adapter, log).WithPublisher(publisher)
}

// ProvideReconciler wires the Rule Reconciliation Loop.
func ProvideReconciler(repo catalog.Repository, store schedulestore.Store, log *logger.Logger) *reconciler.Reconciler {
	return reconciler.New(repo, store, log)
}

// ProvidePoller wires the Notification Polling Pipeline.
func ProvidePoller(repo catalog.Repository, store schedulestore.Store, log *logger.Logger, cfg *config.Config) *polling.Poller {
	return polling.New(repo, store, log, cfg.Polling.BatchSize, cfg.ScheduleStore.TaskQueue, cfg.Polling.JobRetryAttempts)
}

// ProvideController wires the Engine Controller.
func ProvideController(repo catalog.Repository, store schedulestore.Store, log *logger.Logger, rec *reconciler.Reconciler, poller *polling.Poller, cfg *config.Config) *engine.Controller {
	return engine.New(repo, store, log, rec, poller, cfg)
}

// InitializeController builds the full Engine Controller dependency graph.
func InitializeController(db *database.PostgresDB, cfg *config.Config, log *logger.Logger) (*engine.Controller, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
