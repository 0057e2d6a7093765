package management

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/api/response"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/service"
)

// maxFirmwareSize bounds an upload. Gateway images run 30-200 MB.
const maxFirmwareSize = 512 << 20

type FirmwareHandler struct {
	firmwareSvc *service.FirmwareService
}

func NewFirmwareHandler(firmwareSvc *service.FirmwareService) *FirmwareHandler {
	return &FirmwareHandler{firmwareSvc: firmwareSvc}
}

// Upload accepts multipart/form-data with a "file" part and name, version
// and product_classes fields. product_classes is comma separated.
func (h *FirmwareHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFirmwareSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	name := r.FormValue("name")
	version := r.FormValue("version")
	if name == "" || version == "" {
		response.Error(w, http.StatusBadRequest, "name and version are required")
		return
	}

	var productClasses []string
	for _, pc := range strings.Split(r.FormValue("product_classes"), ",") {
		if pc = strings.TrimSpace(pc); pc != "" {
			productClasses = append(productClasses, pc)
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	fw, err := h.firmwareSvc.Upload(r.Context(), name, version, header.Filename, productClasses, file)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			response.Error(w, http.StatusConflict, "firmware already exists")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to store firmware")
		return
	}

	response.JSON(w, http.StatusCreated, fw)
}

func (h *FirmwareHandler) List(w http.ResponseWriter, r *http.Request) {
	firmwares, err := h.firmwareSvc.List(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list firmware")
		return
	}

	response.JSON(w, http.StatusOK, firmwares)
}

func (h *FirmwareHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid firmware id")
		return
	}

	fw, err := h.firmwareSvc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "firmware not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get firmware")
		return
	}

	response.JSON(w, http.StatusOK, fw)
}

type activateRequest struct {
	Active bool `json:"active"`
}

func (h *FirmwareHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid firmware id")
		return
	}

	req := activateRequest{Active: true}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.firmwareSvc.SetActive(r.Context(), id, req.Active); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "firmware not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to update firmware")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FirmwareHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid firmware id")
		return
	}

	if err := h.firmwareSvc.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			response.Error(w, http.StatusNotFound, "firmware not found")
		case errors.Is(err, domain.ErrFirmwareInUse):
			response.Error(w, http.StatusConflict, "firmware is referenced by active workflows")
		default:
			response.Error(w, http.StatusInternalServerError, "failed to delete firmware")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Download streams an image to a device. Devices fetch the URL handed to
// them in a Download RPC, so this endpoint sits outside management auth.
func (h *FirmwareHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "name")
	if fileName == "" {
		http.Error(w, "missing file name", http.StatusBadRequest)
		return
	}

	fw, reader, err := h.firmwareSvc.OpenByFileName(r.Context(), fileName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Checksum-SHA256", fw.ChecksumSHA256)
	io.Copy(w, reader)
}
