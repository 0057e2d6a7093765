package management

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/workflow"
)

type GroupHandler struct {
	groups  domain.GroupRepository
	matcher *workflow.Matcher
}

func NewGroupHandler(groups domain.GroupRepository, matcher *workflow.Matcher) *GroupHandler {
	return &GroupHandler{groups: groups, matcher: matcher}
}

type groupRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	MatchType   domain.MatchType   `json:"match_type"`
	Rules       []domain.GroupRule `json:"rules"`
	Priority    int                `json:"priority"`
}

func (req *groupRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if req.MatchType != domain.MatchAll && req.MatchType != domain.MatchAny {
		return "match_type must be all or any"
	}
	if len(req.Rules) == 0 {
		return "at least one rule is required"
	}
	for _, rule := range req.Rules {
		if rule.Field == "" || rule.Operator == "" {
			return "every rule needs a field and an operator"
		}
	}
	return ""
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return
	}

	group := &domain.DeviceGroup{
		Name:        req.Name,
		Description: req.Description,
		MatchType:   req.MatchType,
		Rules:       req.Rules,
		Priority:    req.Priority,
	}

	if err := h.groups.Create(r.Context(), group); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			response.Error(w, http.StatusConflict, "group name already exists")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	response.JSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list groups")
		return
	}

	response.JSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid group id")
		return
	}

	group, err := h.groups.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "group not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get group")
		return
	}

	response.JSON(w, http.StatusOK, group)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid group id")
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return
	}

	group := &domain.DeviceGroup{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		MatchType:   req.MatchType,
		Rules:       req.Rules,
		Priority:    req.Priority,
	}

	if err := h.groups.Update(r.Context(), group); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "group not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to update group")
		return
	}

	response.JSON(w, http.StatusOK, group)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid group id")
		return
	}

	if err := h.groups.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "group not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to delete group")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Preview evaluates the group rules against the current device inventory
// without persisting anything.
func (h *GroupHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid group id")
		return
	}

	group, err := h.groups.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "group not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get group")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	devices, total, err := h.matcher.Preview(r.Context(), group, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to preview group")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"total":   total,
		"devices": devices,
	})
}
