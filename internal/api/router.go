package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/crestwave/acs/internal/api/acs"
	"github.com/crestwave/acs/internal/api/management"
	"github.com/crestwave/acs/internal/api/middleware"
	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/auth"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/migration"
	"github.com/crestwave/acs/internal/service"
	"github.com/crestwave/acs/internal/workflow"
)

type RouterDeps struct {
	AcsSvc      *service.AcsService
	DeviceSvc   *service.DeviceService
	TaskSvc     *service.TaskService
	FirmwareSvc *service.FirmwareService
	AuditSvc    *service.AuditService

	Devices    domain.DeviceRepository
	Users      domain.UserRepository
	Groups     domain.GroupRepository
	Workflows  domain.WorkflowRepository
	Executions domain.ExecutionRepository
	Backups    domain.BackupRepository
	Params     domain.ParameterRepository

	Matcher  *workflow.Matcher
	Engine   *workflow.Engine
	Planner  *migration.Planner
	Verifier *migration.Verifier

	JWTManager  *auth.JWTManager
	CORSOrigins string
	Logger      *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Metrics
	metrics := middleware.NewMetrics()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(metrics.Middleware())

	// CORS
	origins := strings.Split(deps.CORSOrigins, ",")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Checksum-SHA256", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheus metrics
	r.Get("/metrics", metrics.Handler())

	acsHandler := acs.NewHandler(deps.AcsSvc, deps.Logger)
	firmwareHandler := management.NewFirmwareHandler(deps.FirmwareSvc)

	// CWMP endpoint — devices POST SOAP here. Rate limited per IP since
	// fleets retry aggressively after outages.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(10, 20))
		r.Post("/cwmp", acsHandler.Handle)

		// Firmware images fetched by devices executing a Download RPC.
		// CPE HTTP clients cannot carry a management JWT.
		r.Get("/files/firmware/{name}", firmwareHandler.Download)
	})

	// Management API
	authHandler := management.NewAuthHandler(deps.Users, deps.JWTManager)
	deviceHandler := management.NewDeviceHandler(deps.DeviceSvc)
	taskHandler := management.NewTaskHandler(deps.TaskSvc)
	groupHandler := management.NewGroupHandler(deps.Groups, deps.Matcher)
	workflowHandler := management.NewWorkflowHandler(deps.Workflows, deps.Executions, deps.Engine)
	backupHandler := management.NewBackupHandler(deps.Backups, deps.Params, deps.TaskSvc)
	migrationHandler := management.NewMigrationHandler(deps.Devices, deps.Planner, deps.Verifier)
	auditHandler := management.NewAuditHandler(deps.AuditSvc)

	r.Route("/api/v1/management", func(r chi.Router) {
		// Rate limit management API: 30 req/s with burst of 60
		r.Use(middleware.RateLimit(30, 60))

		// Login (no auth required)
		r.Post("/auth/login", authHandler.Login)

		// Refresh token (requires valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.ManagementAuth(deps.JWTManager))
			r.Post("/auth/refresh", authHandler.Refresh)
		})

		// Authenticated management endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.ManagementAuth(deps.JWTManager))
			r.Use(middleware.AuditLog(deps.AuditSvc))

			// Devices
			r.Get("/devices", deviceHandler.List)
			r.Get("/devices/count", deviceHandler.Count)
			r.Get("/devices/{id}", deviceHandler.Get)
			r.Get("/devices/{id}/parameters", deviceHandler.Parameters)
			r.Patch("/devices/{id}/tags", deviceHandler.UpdateTags)
			r.Delete("/devices/{id}", deviceHandler.Delete)
			r.Post("/devices/{id}/connection_request", deviceHandler.ConnectionRequest)
			r.Get("/devices/{id}/backups", backupHandler.ListByDevice)

			// Migration
			r.Get("/devices/{id}/migration/eligibility", migrationHandler.Eligibility)
			r.Post("/devices/{id}/migration/plan", migrationHandler.Plan)
			r.Post("/devices/{id}/migration/verify", migrationHandler.Verify)

			// Tasks
			r.Get("/tasks", taskHandler.List)
			r.Post("/tasks", taskHandler.Create)
			r.Get("/tasks/{id}", taskHandler.Get)
			r.Post("/tasks/{id}/cancel", taskHandler.Cancel)

			// Groups
			r.Get("/groups", groupHandler.List)
			r.Post("/groups", groupHandler.Create)
			r.Get("/groups/{id}", groupHandler.Get)
			r.Put("/groups/{id}", groupHandler.Update)
			r.Delete("/groups/{id}", groupHandler.Delete)
			r.Get("/groups/{id}/preview", groupHandler.Preview)

			// Workflows
			r.Get("/workflows", workflowHandler.List)
			r.Post("/workflows", workflowHandler.Create)
			r.Get("/workflows/{id}", workflowHandler.Get)
			r.Put("/workflows/{id}/status", workflowHandler.UpdateStatus)
			r.Delete("/workflows/{id}", workflowHandler.Delete)
			r.Post("/workflows/{id}/trigger", workflowHandler.Trigger)
			r.Get("/workflows/{id}/executions", workflowHandler.Executions)

			// Firmware
			r.Get("/firmwares", firmwareHandler.List)
			r.Post("/firmwares", firmwareHandler.Upload)
			r.Get("/firmwares/{id}", firmwareHandler.Get)
			r.Post("/firmwares/{id}/activate", firmwareHandler.Activate)
			r.Delete("/firmwares/{id}", firmwareHandler.Delete)

			// Backups
			r.Get("/backups/{id}", backupHandler.Get)
			r.Post("/backups/{id}/restore", backupHandler.Restore)
			r.Delete("/backups/{id}", backupHandler.Delete)

			// Audit Log
			r.Get("/audit", auditHandler.List)
		})
	})

	return r
}
