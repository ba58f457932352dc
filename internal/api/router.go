package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/updraft/internal/api/handlers"
	mw "github.com/Harshitk-cp/updraft/internal/api/middleware"
	"github.com/Harshitk-cp/updraft/internal/artifact"
	"github.com/Harshitk-cp/updraft/internal/command"
	"github.com/Harshitk-cp/updraft/internal/config"
	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/Harshitk-cp/updraft/internal/feed"
	"github.com/Harshitk-cp/updraft/internal/service"
	"github.com/Harshitk-cp/updraft/internal/store"
	"github.com/Harshitk-cp/updraft/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Scheduler *service.Scheduler
	Rollback  *service.RollbackCoordinator
	Hub       *ws.Hub

	startTime time.Time
	metrics   *mw.MetricsCollector
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	// Durable mirrors
	versionStore := store.NewAgentVersionStore(db)
	packageStore := store.NewPackageStore(db)
	updateStore := store.NewUpdateStore(db)
	rollbackStore := store.NewRollbackStore(db)

	// Agent-facing channels
	queue := command.NewQueue(logger)
	statusBoard := command.NewStatusBoard(config.AgentOnlineTTL())

	// Event broadcast
	hub := ws.NewHub(logger)

	// Core services
	persist := service.NewBestEffortPersist(logger)
	registry := service.NewVersionRegistry(versionStore, persist, logger)

	channels := make([]domain.Channel, 0, len(config.UpdateChannels()))
	for _, c := range config.UpdateChannels() {
		channels = append(channels, domain.Channel(c))
	}
	feedClient := feed.NewClient(config.FeedURL())
	catalog := service.NewUpdateCatalog(feedClient, channels, packageStore, persist, logger)

	// Reload previously discovered packages; a failure here only delays
	// the catalog until the first feed refresh.
	hydrateCtx, cancelHydrate := context.WithTimeout(context.Background(), 10*time.Second)
	if err := catalog.Hydrate(hydrateCtx); err != nil {
		logger.Warn("catalog hydration failed", zap.Error(err))
	}
	cancelHydrate()

	artifacts, err := artifact.NewCache(config.ArtifactDir(), logger)
	if err != nil {
		return nil, err
	}

	jobs := service.NewJobTable()
	eval := service.NewEvaluator(nil)

	executor := service.NewExecutor(jobs, registry, catalog, artifacts, queue, statusBoard, updateStore, persist, hub, logger)
	executor.SetTimeouts(service.Timeouts{
		BackupWait:   config.BackupWaitTimeout(),
		OnlineWait:   config.OnlineWaitTimeout(),
		VerifyWait:   config.VerifyWaitTimeout(),
		PollInterval: 5 * time.Second,
	})

	rollback := service.NewRollbackCoordinator(jobs, registry, queue, statusBoard, rollbackStore, updateStore, persist, hub, logger)
	rollback.SetInterval(config.HealthWatchInterval(), config.HealthWatchErrorBackoff())
	executor.SetRollbackCoordinator(rollback)

	scheduler := service.NewScheduler(catalog, registry, jobs, eval, executor, updateStore, persist, hub, logger)
	scheduler.SetInterval(config.CatalogInterval(), config.CatalogErrorBackoff())
	scheduler.SetMaintenanceWindow(service.MaintenanceWindow{
		Start: config.MaintenanceWindowStart(),
		End:   config.MaintenanceWindowEnd(),
	})

	stats := service.NewStatsService(registry, jobs, catalog)

	// Handlers
	versionHandler := handlers.NewVersionHandler(registry, versionStore)
	updateHandler := handlers.NewUpdateHandler(scheduler, jobs, catalog, registry, eval, updateStore)
	rollbackHandler := handlers.NewRollbackHandler(rollback, jobs, rollbackStore)
	statsHandler := handlers.NewStatsHandler(stats)
	agentHandler := handlers.NewAgentHandler(queue, statusBoard)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Scheduler: scheduler,
		Rollback:  rollback,
		Hub:       hub,
		startTime: time.Now(),
		metrics:   mw.NewMetricsCollector(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	// Event stream for dashboards
	r.Get("/v1/events", hub.ServeHTTP)

	r.Route("/v1/version", func(r chi.Router) {
		r.Post("/report", versionHandler.Report)
		r.Get("/agents", versionHandler.ListAgents)
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Get("/", versionHandler.GetAgent)
			r.Get("/updates/check", updateHandler.Check)
			r.Get("/updates/history", updateHandler.History)
			r.Get("/rollbacks", rollbackHandler.History)
		})

		r.Route("/updates", func(r chi.Router) {
			r.Get("/available", updateHandler.Available)
			r.Get("/active", updateHandler.ListActive)
			r.Post("/schedule", updateHandler.Schedule)
			r.Route("/{updateID}", func(r chi.Router) {
				r.Get("/", updateHandler.GetByID)
				r.Post("/cancel", updateHandler.Cancel)
			})
		})

		r.Post("/rollback", rollbackHandler.Initiate)
		r.Get("/statistics", statsHandler.Get)
		r.Post("/emergency/stop-updates", updateHandler.EmergencyStop)
	})

	// Agent-facing surface: heartbeats and the command queue
	r.Route("/v1/agents/{agentID}", func(r chi.Router) {
		r.Post("/heartbeat", agentHandler.Heartbeat)
		r.Get("/commands", agentHandler.Commands)
		r.Post("/commands/{commandID}/ack", agentHandler.Ack)
	})

	return app, nil
}

// Start launches the background loops: catalog/scheduler and the
// post-update health watch.
func (app *App) Start() {
	app.Scheduler.Start()
	app.Rollback.Start()
}

// Stop gracefully stops the background loops and disconnects observers.
func (app *App) Stop() {
	app.Scheduler.Stop()
	app.Rollback.Stop()
	app.Hub.Close()
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		requests, agentRequests, errCount, inflight := app.metrics.Snapshot()

		response := map[string]any{
			"uptime_seconds":      uptime.Seconds(),
			"uptime_human":        uptime.Round(time.Second).String(),
			"request_count":       requests,
			"agent_request_count": agentRequests,
			"error_count":         errCount,
			"inflight_requests":   inflight,
			"goroutines":          runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure the concrete stores and channels satisfy the domain interfaces at
// compile time.
var (
	_ domain.AgentVersionStore = (*store.AgentVersionStore)(nil)
	_ domain.PackageStore      = (*store.PackageStore)(nil)
	_ domain.UpdateStore       = (*store.UpdateStore)(nil)
	_ domain.RollbackStore     = (*store.RollbackStore)(nil)
	_ domain.CommandChannel    = (*command.Queue)(nil)
	_ domain.StatusChannel     = (*command.StatusBoard)(nil)
	_ domain.EventSink         = (*ws.Hub)(nil)
	_ service.FeedClient       = (*feed.Client)(nil)
	_ service.ArtifactFetcher  = (*artifact.Cache)(nil)
)
