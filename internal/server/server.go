package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/bensuskins/office-hub/internal/config"
	"github.com/bensuskins/office-hub/internal/handlers"
	"github.com/bensuskins/office-hub/internal/metrics"
	"github.com/bensuskins/office-hub/internal/repository"
	"github.com/bensuskins/office-hub/internal/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	router  *chi.Mux
	config  config.Config
	service *services.DeadlineService
}

// New wires repositories, services and handlers onto a chi router. Metrics
// are registered on registry and served from /metrics.
func New(database *sql.DB, cfg config.Config, registry *prometheus.Registry) *Server {
	taskRepo := repository.NewTaskRepository(database)
	assigneeRepo := repository.NewAssigneeRepository(database)
	assignmentRepo := repository.NewAssignmentRepository(database)
	overrideRepo := repository.NewOccurrenceOverrideRepository(database)
	settingsRepo := repository.NewSettingsRepository(database)

	registry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewPrometheus(registry, "")

	projector := services.NewProjector(cfg.GenerationBound)
	lifecycle := services.NewLifecycleEvaluator(taskRepo, assignmentRepo, overrideRepo, projector,
		services.WithLocation(cfg.Location()),
		services.WithRecorder(recorder),
	)
	deadlineService := services.NewDeadlineService(taskRepo, assigneeRepo, assignmentRepo, overrideRepo, lifecycle, projector, recorder)

	deadlineHandler := handlers.NewDeadlineHandler(deadlineService)
	icalHandler := handlers.NewICalHandler(deadlineService, assigneeRepo, settingsRepo, cfg.OfficeName)

	router := chi.NewRouter()

	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Compress(5))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	router.Get("/ical", icalHandler.Feed)

	router.Route("/api", func(r chi.Router) {
		r.Get("/rows", deadlineHandler.ListRows)
		r.Post("/tasks", deadlineHandler.CreateTask)
		r.Put("/tasks/{id}", deadlineHandler.UpdateTask)
		r.Post("/assignees", deadlineHandler.CreateAssignee)
		r.Post("/assignments", deadlineHandler.CreateAssignment)
		r.Post("/assignments/{id}/occurrences/{date}", deadlineHandler.RecordOutcome)
		r.Post("/assignments/{id}/cutoff", deadlineHandler.Cutoff)
		r.Post("/assignments/{id}/revoke", deadlineHandler.Revoke)
	})

	return &Server{
		router:  router,
		config:  cfg,
		service: deadlineService,
	}
}

func (server *Server) Handler() http.Handler {
	return server.router
}

func (server *Server) Service() *services.DeadlineService {
	return server.service
}

func (server *Server) Start() error {
	address := ":" + server.config.Port
	slog.Info("starting server", "address", address)
	return http.ListenAndServe(address, server.router)
}
