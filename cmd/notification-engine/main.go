// Notification Engine - Multi-tenant Rule-driven Notification Dispatch
// =====================================================================
// This service reconciles CRON-triggered notification rules against a
// durable workflow scheduler and polls the Catalog DB for dispatchable
// notifications, driving each through the Template Engine and Dispatch
// Adapter to a Delivery Provider.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.temporal.io/sdk/worker"

	"github.com/xnovu/notification-engine/internal/engine"
	"github.com/xnovu/notification-engine/internal/enginewire"
	"github.com/xnovu/notification-engine/internal/schedulestore"
	"github.com/xnovu/notification-engine/internal/workflows"
	"github.com/xnovu/notification-engine/pkg/auth"
	"github.com/xnovu/notification-engine/pkg/config"
	"github.com/xnovu/notification-engine/pkg/database"
	"github.com/xnovu/notification-engine/pkg/logger"
	"github.com/xnovu/notification-engine/pkg/middleware"
	"github.com/xnovu/notification-engine/pkg/response"
	"github.com/xnovu/notification-engine/pkg/tracer"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Exit codes per §6.4: 1 = init failure, 2 = unrecoverable Schedule Store
// loss, 3 = config validation failure.
const (
	exitInitFailure           = 1
	exitScheduleStoreUnusable = 2
	exitConfigInvalid         = 3
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitConfigInvalid)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
		Caller:     cfg.Logger.Caller,
	})
	log = log.With().Service(cfg.App.Name).Logger()
	logger.SetGlobal(log)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting notification engine")

	tr, err := tracer.New(&cfg.Tracer, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize tracer")
		os.Exit(exitInitFailure)
	}
	defer tr.Close(context.Background())

	db, err := database.NewPostgres(&cfg.Catalog, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to the catalog database")
		os.Exit(exitInitFailure)
	}
	defer db.Close()

	controller, err := enginewire.InitializeController(db, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build the engine controller")
		os.Exit(exitScheduleStoreUnusable)
	}

	ctx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Init(ctx, controller, cfg); err != nil {
		cancelInit()
		log.Error().Err(err).Msg("engine controller init failed")
		os.Exit(exitInitFailure)
	}
	cancelInit()

	if temporalStore, ok := controller.Store.(*schedulestore.TemporalStore); ok {
		acts, err := enginewire.InitializeActivities(controller.Repo, cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to build workflow activities")
			os.Exit(exitScheduleStoreUnusable)
		}
		if err := temporalStore.RegisterWorker(func(w worker.Worker) {
			workflows.Register(w, acts)
		}); err != nil {
			log.Error().Err(err).Msg("failed to start the Schedule Store worker")
			os.Exit(exitScheduleStoreUnusable)
		}
	}

	jwtManager := auth.NewJWTManager(&cfg.OperatorAuth)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recover(log))
	r.Use(middleware.ContentType("application/json"))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		health := controller.HealthCheck(req.Context())
		checks := make(map[string]response.HealthCheck, len(health.Details)+1)
		for k, v := range health.Details {
			checks[k] = response.HealthCheck{Status: string(health.Status), Message: v}
		}
		response.Health(w, string(health.Status), Version, 0, checks)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		s := controller.Status()
		response.OK(w, map[string]interface{}{
			"initialized":  s.Initialized,
			"reconciliation": map[string]interface{}{
				"last_tick": s.Reconciliation.LastTick,
				"interval":  s.Reconciliation.Interval.String(),
			},
			"queue_stats": map[string]interface{}{
				"in_flight": s.QueueStats.InFlight,
			},
		})
	})

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.Auth(jwtManager))

		admin.Post("/admin/reload-cron-rules", func(w http.ResponseWriter, req *http.Request) {
			tenant := req.URL.Query().Get("tenant")
			stats, err := controller.ReloadCronRules(req.Context(), tenant)
			if err != nil {
				response.Error(w, err)
				return
			}
			response.OK(w, stats)
		})

		admin.Post("/admin/pause", func(w http.ResponseWriter, req *http.Request) {
			if err := controller.Pause(req.Context()); err != nil {
				response.Error(w, err)
				return
			}
			response.OK(w, map[string]string{"status": "paused"})
		})

		admin.Post("/admin/resume", func(w http.ResponseWriter, req *http.Request) {
			if err := controller.Resume(req.Context()); err != nil {
				response.Error(w, err)
				return
			}
			response.OK(w, map[string]string{"status": "resumed"})
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("control-plane HTTP server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control-plane HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down notification engine")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control-plane HTTP server forced to shutdown")
	}
	if err := controller.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("engine controller shutdown failed")
	}

	log.Info().Msg("notification engine stopped")
}
