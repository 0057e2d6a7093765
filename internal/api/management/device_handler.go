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

type DeviceHandler struct {
	deviceSvc *service.DeviceService
}

func NewDeviceHandler(deviceSvc *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceSvc: deviceSvc}
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.DeviceFilter{
		Page:      page,
		PerPage:   perPage,
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}

	if v := q.Get("manufacturer"); v != "" {
		filter.Manufacturer = &v
	}
	if v := q.Get("product_class"); v != "" {
		filter.ProductClass = &v
	}
	if v := q.Get("oui"); v != "" {
		filter.OUI = &v
	}
	if v := q.Get("online"); v != "" {
		online := v == "true" || v == "1"
		filter.Online = &online
	}
	if tags := q["tag"]; len(tags) > 0 {
		filter.Tags = tags
	}

	devices, total, err := h.deviceSvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	response.Paginated(w, http.StatusOK, devices, page, perPage, total)
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := h.deviceSvc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "device not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get device")
		return
	}

	response.JSON(w, http.StatusOK, device)
}

func (h *DeviceHandler) Count(w http.ResponseWriter, r *http.Request) {
	online, total, err := h.deviceSvc.CountOnline(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to count devices")
		return
	}

	response.JSON(w, http.StatusOK, map[string]int{"online": online, "total": total})
}

// Parameters serves the cached parameter set, with the inferred data model
// so clients need not derive it themselves.
func (h *DeviceHandler) Parameters(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	params, model, err := h.deviceSvc.Parameters(r.Context(), id)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to get parameters")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"data_model": model,
		"parameters": params,
	})
}

type updateTagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *DeviceHandler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req updateTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.deviceSvc.UpdateTags(r.Context(), id, req.Tags); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "device not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to update tags")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := h.deviceSvc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "device not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ConnectionRequest asks the device to inform now, trying XMPP, UDP and
// HTTP in that order.
func (h *DeviceHandler) ConnectionRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := h.deviceSvc.RequestConnection(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "device not found")
			return
		}
		response.Error(w, http.StatusBadGateway, "connection request not delivered")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}
