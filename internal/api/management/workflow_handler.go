package management

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/workflow"
)

type WorkflowHandler struct {
	workflows  domain.WorkflowRepository
	executions domain.ExecutionRepository
	engine     *workflow.Engine
}

func NewWorkflowHandler(workflows domain.WorkflowRepository, executions domain.ExecutionRepository, engine *workflow.Engine) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, executions: executions, engine: engine}
}

type createWorkflowRequest struct {
	GroupID              uuid.UUID               `json:"group_id"`
	Name                 string                  `json:"name"`
	TaskType             domain.WorkflowTaskType `json:"task_type"`
	Schedule             domain.WorkflowSchedule `json:"schedule"`
	DependsOnWorkflowID  *uuid.UUID              `json:"depends_on_workflow_id"`
	StopOnFailurePercent int                     `json:"stop_on_failure_percent"`
	Params               domain.TaskParams       `json:"params"`
	FirmwareID           *uuid.UUID              `json:"firmware_id"`
}

func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		response.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.GroupID == uuid.Nil {
		response.Error(w, http.StatusBadRequest, "group_id is required")
		return
	}
	switch req.Schedule {
	case domain.ScheduleOnConnect, domain.ScheduleManual, domain.SchedulePeriodic:
	default:
		response.Error(w, http.StatusBadRequest, "schedule must be on_connect, manual or periodic")
		return
	}
	if req.StopOnFailurePercent < 0 || req.StopOnFailurePercent > 100 {
		response.Error(w, http.StatusBadRequest, "stop_on_failure_percent must be 0-100")
		return
	}

	if req.DependsOnWorkflowID != nil {
		if _, err := h.workflows.GetByID(r.Context(), *req.DependsOnWorkflowID); err != nil {
			response.Error(w, http.StatusBadRequest, "depends_on_workflow_id does not exist")
			return
		}
	}

	wf := &domain.GroupWorkflow{
		GroupID:              req.GroupID,
		Name:                 req.Name,
		TaskType:             req.TaskType,
		Schedule:             req.Schedule,
		DependsOnWorkflowID:  req.DependsOnWorkflowID,
		StopOnFailurePercent: req.StopOnFailurePercent,
		Params:               req.Params,
		FirmwareID:           req.FirmwareID,
		Status:               domain.WorkflowActive,
	}

	if err := h.workflows.Create(r.Context(), wf); err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to create workflow")
		return
	}

	response.JSON(w, http.StatusCreated, wf)
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.workflows.List(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}

	response.JSON(w, http.StatusOK, workflows)
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid workflow id")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "workflow not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get workflow")
		return
	}

	response.JSON(w, http.StatusOK, wf)
}

type updateWorkflowStatusRequest struct {
	Status domain.WorkflowStatus `json:"status"`
}

func (h *WorkflowHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid workflow id")
		return
	}

	var req updateWorkflowStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case domain.WorkflowActive, domain.WorkflowPaused, domain.WorkflowCompleted, domain.WorkflowDisabled:
	default:
		response.Error(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := h.workflows.UpdateStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "workflow not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to update workflow")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid workflow id")
		return
	}

	if err := h.workflows.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "workflow not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to delete workflow")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Trigger runs the workflow against every matching device right away,
// regardless of its schedule.
func (h *WorkflowHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid workflow id")
		return
	}

	matched, err := h.engine.Trigger(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			response.Error(w, http.StatusNotFound, "workflow not found")
		case errors.Is(err, domain.ErrWorkflowPaused):
			response.Error(w, http.StatusConflict, "workflow is not active")
		default:
			response.Error(w, http.StatusInternalServerError, "failed to trigger workflow")
		}
		return
	}

	response.JSON(w, http.StatusOK, map[string]int{"matched_devices": matched})
}

func (h *WorkflowHandler) Executions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid workflow id")
		return
	}

	executions, err := h.executions.ListByWorkflow(r.Context(), id)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	counts, err := h.executions.CountByStatus(r.Context(), id)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to count executions")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"counts":     counts,
		"executions": executions,
	})
}
