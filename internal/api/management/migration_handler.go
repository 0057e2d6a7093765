package management

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/migration"
)

type MigrationHandler struct {
	devices  domain.DeviceRepository
	planner  *migration.Planner
	verifier *migration.Verifier
}

func NewMigrationHandler(devices domain.DeviceRepository, planner *migration.Planner, verifier *migration.Verifier) *MigrationHandler {
	return &MigrationHandler{devices: devices, planner: planner, verifier: verifier}
}

func (h *MigrationHandler) device(w http.ResponseWriter, r *http.Request) *domain.Device {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return nil
	}

	device, err := h.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "device not found")
			return nil
		}
		response.Error(w, http.StatusInternalServerError, "failed to get device")
		return nil
	}
	return device
}

// Eligibility reports whether the device qualifies for the TR-181
// transition, with per-check reasons when it does not.
func (h *MigrationHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	device := h.device(w, r)
	if device == nil {
		return
	}

	elig, err := h.planner.CheckDevice(r.Context(), device)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to check eligibility")
		return
	}

	response.JSON(w, http.StatusOK, elig)
}

// Plan queues the ordered migration task chain for an eligible device.
func (h *MigrationHandler) Plan(w http.ResponseWriter, r *http.Request) {
	device := h.device(w, r)
	if device == nil {
		return
	}

	elig, err := h.planner.CheckDevice(r.Context(), device)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to check eligibility")
		return
	}
	if !elig.Eligible {
		response.JSON(w, http.StatusUnprocessableEntity, elig)
		return
	}

	tasks, err := h.planner.Plan(r.Context(), device)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to plan migration")
		return
	}

	response.JSON(w, http.StatusAccepted, tasks)
}

// Verify re-runs post-migration verification on demand.
func (h *MigrationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	device := h.device(w, r)
	if device == nil {
		return
	}

	result, err := h.verifier.Verify(r.Context(), device)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to verify migration")
		return
	}

	response.JSON(w, http.StatusOK, result)
}
