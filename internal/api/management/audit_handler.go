package management

import (
	"net/http"

	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/service"
)

type AuditHandler struct {
	auditSvc *service.AuditService
}

func NewAuditHandler(auditSvc *service.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.AuditFilter{
		Page:      page,
		PerPage:   perPage,
		SortOrder: q.Get("order"),
	}

	if v := q.Get("actor"); v != "" {
		filter.Actor = &v
	}
	if v := q.Get("action"); v != "" {
		filter.Action = &v
	}
	if v := q.Get("resource"); v != "" {
		filter.Resource = &v
	}

	entries, total, err := h.auditSvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	response.Paginated(w, http.StatusOK, entries, page, perPage, total)
}
