package middleware

import (
	"net/http"
	"strings"

	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/service"
)

// AuditLog returns a middleware that records management API actions.
func AuditLog(auditSvc *service.AuditService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Only audit mutating requests that succeeded
			if r.Method == http.MethodGet || r.Method == http.MethodOptions {
				return
			}
			if rw.status >= 400 {
				return
			}

			action, resource := classifyRequest(r.Method, r.URL.Path)
			if action == "" {
				return
			}

			actor := "anonymous"
			if uid, ok := r.Context().Value(UserIDKey).(string); ok && uid != "" {
				actor = uid
			}

			entry := &domain.AuditEntry{
				Actor:     actor,
				ActorType: "management",
				Action:    action,
				Resource:  resource,
				IPAddress: r.RemoteAddr,
				Details:   map[string]interface{}{"method": r.Method, "path": r.URL.Path},
			}

			// Extract resource ID from URL if present
			parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/management/"), "/")
			if len(parts) >= 2 {
				entry.ResourceID = parts[1]
			}

			auditSvc.Log(r.Context(), entry)
		})
	}
}

func classifyRequest(method, path string) (action, resource string) {
	p := strings.TrimPrefix(path, "/api/v1/management/")

	switch {
	case strings.HasPrefix(p, "devices") && strings.Contains(p, "connection_request"):
		return "device.connection_request", "device"
	case strings.HasPrefix(p, "devices") && strings.Contains(p, "migration"):
		return "device.migration", "device"
	case strings.HasPrefix(p, "devices") && method == http.MethodPatch:
		return "device.update_tags", "device"
	case strings.HasPrefix(p, "devices") && method == http.MethodDelete:
		return "device.delete", "device"
	case strings.HasPrefix(p, "tasks") && method == http.MethodPost && strings.HasSuffix(p, "cancel"):
		return "task.cancel", "task"
	case strings.HasPrefix(p, "tasks") && method == http.MethodPost:
		return "task.create", "task"
	case strings.HasPrefix(p, "groups") && method == http.MethodPost:
		return "group.create", "group"
	case strings.HasPrefix(p, "groups") && method == http.MethodPut:
		return "group.update", "group"
	case strings.HasPrefix(p, "groups") && method == http.MethodDelete:
		return "group.delete", "group"
	case strings.HasPrefix(p, "workflows") && strings.HasSuffix(p, "trigger"):
		return "workflow.trigger", "workflow"
	case strings.HasPrefix(p, "workflows") && method == http.MethodPost:
		return "workflow.create", "workflow"
	case strings.HasPrefix(p, "workflows") && method == http.MethodPut:
		return "workflow.update_status", "workflow"
	case strings.HasPrefix(p, "workflows") && method == http.MethodDelete:
		return "workflow.delete", "workflow"
	case strings.HasPrefix(p, "firmwares") && method == http.MethodPost && strings.HasSuffix(p, "activate"):
		return "firmware.activate", "firmware"
	case strings.HasPrefix(p, "firmwares") && method == http.MethodPost:
		return "firmware.upload", "firmware"
	case strings.HasPrefix(p, "firmwares") && method == http.MethodDelete:
		return "firmware.delete", "firmware"
	case strings.HasPrefix(p, "backups") && strings.HasSuffix(p, "restore"):
		return "backup.restore", "backup"
	case strings.HasPrefix(p, "backups") && method == http.MethodDelete:
		return "backup.delete", "backup"
	case strings.HasPrefix(p, "auth"):
		return "auth.login", "auth"
	default:
		return "", ""
	}
}
