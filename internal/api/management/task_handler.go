package management

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/service"
)

type TaskHandler struct {
	taskSvc *service.TaskService
}

func NewTaskHandler(taskSvc *service.TaskService) *TaskHandler {
	return &TaskHandler{taskSvc: taskSvc}
}

type createTaskRequest struct {
	DeviceID uuid.UUID         `json:"device_id"`
	Type     domain.TaskType   `json:"type"`
	Params   domain.TaskParams `json:"params"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task := &domain.Task{
		DeviceID: req.DeviceID,
		Type:     req.Type,
		Params:   req.Params,
	}

	if err := h.taskSvc.Create(r.Context(), task); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			response.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			response.Error(w, http.StatusNotFound, "device not found")
		default:
			response.Error(w, http.StatusInternalServerError, "failed to create task")
		}
		return
	}

	response.JSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.TaskFilter{Page: page, PerPage: perPage}

	if v := q.Get("device_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "invalid device_id")
			return
		}
		filter.DeviceID = &id
	}
	if v := q.Get("status"); v != "" {
		status := domain.TaskStatus(v)
		filter.Status = &status
	}
	if v := q.Get("type"); v != "" {
		taskType := domain.TaskType(v)
		filter.Type = &taskType
	}

	tasks, total, err := h.taskSvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	response.Paginated(w, http.StatusOK, tasks, page, perPage, total)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := h.taskSvc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "task not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	response.JSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := h.taskSvc.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			response.Error(w, http.StatusNotFound, "task not found")
		case errors.Is(err, domain.ErrTaskTerminal):
			response.Error(w, http.StatusConflict, "task already finished")
		default:
			response.Error(w, http.StatusInternalServerError, "failed to cancel task")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
