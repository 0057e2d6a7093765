package management

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/service"
	"github.com/crestwave/acs/internal/workflow"
)

type BackupHandler struct {
	backups domain.BackupRepository
	params  domain.ParameterRepository
	taskSvc *service.TaskService
}

func NewBackupHandler(backups domain.BackupRepository, params domain.ParameterRepository, taskSvc *service.TaskService) *BackupHandler {
	return &BackupHandler{backups: backups, params: params, taskSvc: taskSvc}
}

func (h *BackupHandler) ListByDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	backups, err := h.backups.ListByDevice(r.Context(), deviceID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list backups")
		return
	}

	response.JSON(w, http.StatusOK, backups)
}

func (h *BackupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid backup id")
		return
	}

	backup, err := h.backups.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "backup not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get backup")
		return
	}

	response.JSON(w, http.StatusOK, backup)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid backup id")
		return
	}

	if err := h.backups.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "backup not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to delete backup")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type restoreRequest struct {
	// ParameterNames, when present, restricts the restore to this subset of
	// the snapshot. Empty means the whole snapshot.
	ParameterNames []string `json:"parameter_names"`
}

// Restore queues a set_parameter_values task replaying the snapshot. The
// same filter the restore workflow uses applies here: writable parameters
// only, never ManagementServer connectivity settings, so a stale snapshot
// cannot point the device at the wrong server.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid backup id")
		return
	}

	var req restoreRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	backup, err := h.backups.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "backup not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get backup")
		return
	}

	rows, err := h.params.GetAll(r.Context(), backup.DeviceID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to load device parameters")
		return
	}
	writable := make(map[string]bool, len(rows))
	for _, row := range rows {
		writable[row.Name] = row.Writable
	}

	values := workflow.RestoreValues(backup.Parameters, writable, req.ParameterNames, datamodel.Infer(rows))
	if len(values) == 0 {
		response.Error(w, http.StatusUnprocessableEntity, "backup contains no restorable parameters")
		return
	}

	task := &domain.Task{
		DeviceID: backup.DeviceID,
		Type:     domain.TaskSetParams,
		Params:   domain.TaskParams{Values: values},
	}

	if err := h.taskSvc.Create(r.Context(), task); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "device not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to queue restore task")
		return
	}

	response.JSON(w, http.StatusAccepted, task)
}
